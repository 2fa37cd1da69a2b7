package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the uniform wrapper for every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success writes a 200 envelope with data.
func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes a 201 envelope with data.
func Created(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// Message writes a 200 envelope carrying only a human-readable message.
func Message(ctx *gin.Context, msg string) {
	ctx.JSON(http.StatusOK, Envelope{Success: true, Message: msg})
}

// Fail writes an error envelope with the given status.
func Fail(ctx *gin.Context, status int, errMsg string) {
	ctx.JSON(status, Envelope{Success: false, Error: errMsg})
}
