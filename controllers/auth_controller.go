package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/forumkit/forumkit/config"
	"github.com/forumkit/forumkit/models"
	"github.com/forumkit/forumkit/utils"
)

const tokenLifetime = 72 * time.Hour

// AuthController handles authentication and user-profile endpoints, including
// GitHub and Google sign-in.
type AuthController struct {
	db *gorm.DB
}

// NewAuthController creates an AuthController.
func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{db: db}
}

// Register handles local account registration with bcrypt hashing.
func (a *AuthController) Register(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required,min=3,max=32"`
		Email    string `json:"email"`
		Password string `json:"password" binding:"required,min=6,max=64"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.WriteError(ctx, utils.ErrValidation("invalid request payload"))
		return
	}

	username := strings.TrimSpace(req.Username)
	if !validUsername(username) {
		utils.WriteError(ctx, utils.ErrValidation("username may contain letters, digits, '-' and '_' only"))
		return
	}

	var existing models.User
	if err := a.db.Where("username = ?", username).First(&existing).Error; err == nil {
		utils.WriteError(ctx, utils.ErrConflict("username already exists"))
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to hash password", err))
		return
	}

	user := models.User{
		Username:     username,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
		Role:         models.RoleUser,
		IsActive:     true,
	}
	if err := a.db.Create(&user).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to create user", err))
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Username, user.Role, tokenLifetime)
	if err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to generate token", err))
		return
	}

	utils.Created(ctx, gin.H{"token": token, "user": user})
}

// Login verifies user credentials and issues a JWT.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.WriteError(ctx, utils.ErrValidation("invalid request payload"))
		return
	}

	var user models.User
	if err := a.db.Where("username = ? AND is_active = ?", req.Username, true).First(&user).Error; err != nil {
		utils.Fail(ctx, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Fail(ctx, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Username, user.Role, tokenLifetime)
	if err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to generate token", err))
		return
	}

	utils.Success(ctx, gin.H{"token": token, "user": user})
}

// Logout invalidates the token by blacklisting it until expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	authHeader := ctx.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		utils.Fail(ctx, http.StatusUnauthorized, "invalid authorization header")
		return
	}

	token := strings.TrimSpace(parts[1])
	claims, err := utils.ParseToken(token)
	if err != nil {
		utils.Fail(ctx, http.StatusUnauthorized, "invalid token")
		return
	}

	expiresAt := time.Now().Add(tokenLifetime)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	utils.BlacklistToken(token, expiresAt)
	utils.Message(ctx, "logged out")
}

// Me returns the current authenticated user's information.
func (a *AuthController) Me(ctx *gin.Context) {
	actor := currentActor(ctx)
	var user models.User
	if err := a.db.Where("is_active = ?", true).First(&user, actor.ID).Error; err != nil {
		utils.WriteError(ctx, utils.ErrNotFound("user not found"))
		return
	}
	utils.Success(ctx, gin.H{"user": user})
}

// UpdateProfile allows the authenticated user to update basic profile fields.
func (a *AuthController) UpdateProfile(ctx *gin.Context) {
	var req struct {
		Email     *string `json:"email"`
		Signature *string `json:"signature"`
		AvatarURL *string `json:"avatar_url"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.WriteError(ctx, utils.ErrValidation("invalid request payload"))
		return
	}

	actor := currentActor(ctx)
	var user models.User
	if err := a.db.Where("is_active = ?", true).First(&user, actor.ID).Error; err != nil {
		utils.WriteError(ctx, utils.ErrNotFound("user not found"))
		return
	}

	if req.Email != nil {
		user.Email = strings.TrimSpace(*req.Email)
	}
	if req.Signature != nil {
		sig := utils.Sanitize(strings.TrimSpace(*req.Signature))
		if rs := []rune(sig); len(rs) > 255 {
			sig = string(rs[:255])
		}
		user.Signature = sig
	}
	if req.AvatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*req.AvatarURL)
	}

	if err := a.db.Save(&user).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to update profile", err))
		return
	}
	utils.Success(ctx, gin.H{"user": user})
}

// GetUserPublic returns a public user profile by ID.
func (a *AuthController) GetUserPublic(ctx *gin.Context) {
	var user models.User
	if err := a.db.Where("is_active = ?", true).First(&user, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(ctx, utils.ErrNotFound("user not found"))
			return
		}
		utils.WriteError(ctx, utils.ErrInternal("failed to load user", err))
		return
	}
	utils.Success(ctx, gin.H{"user": user.Public()})
}

// ListUserThreads returns a user's active threads, newest first.
func (a *AuthController) ListUserThreads(ctx *gin.Context) {
	page, limit := utils.ParsePageQuery(ctx.Query("page"), ctx.Query("limit"))
	query := a.db.Model(&models.Thread{}).
		Where("user_id = ? AND is_active = ?", ctx.Param("id"), true)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to count threads", err))
		return
	}
	var threads []models.Thread
	if err := query.Preload("User").Order("created_at DESC").
		Offset(utils.Offset(page, limit)).Limit(limit).
		Find(&threads).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to list threads", err))
		return
	}

	utils.Success(ctx, gin.H{
		"threads":    threads,
		"pagination": utils.Paginate(page, limit, total),
	})
}

// ListUserPosts returns a user's active posts, newest first.
func (a *AuthController) ListUserPosts(ctx *gin.Context) {
	page, limit := utils.ParsePageQuery(ctx.Query("page"), ctx.Query("limit"))
	query := a.db.Model(&models.Post{}).
		Where("user_id = ? AND is_active = ?", ctx.Param("id"), true)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to count posts", err))
		return
	}
	var posts []models.Post
	if err := query.Order("created_at DESC").
		Offset(utils.Offset(page, limit)).Limit(limit).
		Find(&posts).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to list posts", err))
		return
	}

	utils.Success(ctx, gin.H{
		"posts":      posts,
		"pagination": utils.Paginate(page, limit, total),
	})
}

// ListUsers returns paginated users. Admin only.
func (a *AuthController) ListUsers(ctx *gin.Context) {
	page, limit := utils.ParsePageQuery(ctx.Query("page"), ctx.Query("limit"))

	var total int64
	if err := a.db.Model(&models.User{}).Count(&total).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to count users", err))
		return
	}
	var users []models.User
	if err := a.db.Order("created_at DESC").
		Offset(utils.Offset(page, limit)).Limit(limit).
		Find(&users).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to list users", err))
		return
	}

	utils.Success(ctx, gin.H{
		"users":      users,
		"pagination": utils.Paginate(page, limit, total),
	})
}

// DeleteUser soft-deactivates an account. Admin only; self-deactivation is
// rejected to avoid locking out the last admin.
func (a *AuthController) DeleteUser(ctx *gin.Context) {
	actor := currentActor(ctx)
	var user models.User
	if err := a.db.Where("is_active = ?", true).First(&user, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(ctx, utils.ErrNotFound("user not found"))
			return
		}
		utils.WriteError(ctx, utils.ErrInternal("failed to load user", err))
		return
	}
	if user.ID == actor.ID {
		utils.WriteError(ctx, utils.ErrValidation("cannot deactivate your own account"))
		return
	}

	if err := a.db.Model(&user).UpdateColumn("is_active", false).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to deactivate user", err))
		return
	}
	utils.Message(ctx, "user deactivated")
}

// OAuthRedirect generates a provider-specific authorization URL.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	provider := ctx.Param("provider")
	cfg, err := oauthConfig(provider)
	if err != nil {
		utils.WriteError(ctx, utils.ErrValidation(err.Error()))
		return
	}

	state := uuid.NewString()
	utils.SaveState(state, 10*time.Minute)

	url := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	utils.Success(ctx, gin.H{"authorization_url": url, "state": state})
}

// OAuthCallback exchanges the authorization code for a user identity and issues a JWT.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	provider := ctx.Param("provider")
	code := ctx.Query("code")
	state := ctx.Query("state")

	if code == "" || state == "" {
		utils.WriteError(ctx, utils.ErrValidation("missing code or state"))
		return
	}
	if !utils.ConsumeState(state) {
		utils.WriteError(ctx, utils.ErrValidation("invalid or expired state"))
		return
	}

	cfg, err := oauthConfig(provider)
	if err != nil {
		utils.WriteError(ctx, utils.ErrValidation(err.Error()))
		return
	}

	token, err := cfg.Exchange(context.Background(), code)
	if err != nil {
		utils.WriteError(ctx, utils.ErrValidation("failed to exchange code"))
		return
	}

	info, err := fetchOAuthUser(provider, token)
	if err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to fetch provider identity", err))
		return
	}

	user, err := a.findOrCreateOAuthUser(provider, info)
	if err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to persist user", err))
		return
	}

	jwtToken, err := utils.GenerateToken(user.ID, user.Username, user.Role, tokenLifetime)
	if err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to generate token", err))
		return
	}

	utils.Success(ctx, gin.H{"token": jwtToken, "user": user})
}

func validUsername(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-', r == '_':
		default:
			return false
		}
	}
	return s != ""
}

func oauthConfig(provider string) (*oauth2.Config, error) {
	cfg := config.Get()
	switch strings.ToLower(provider) {
	case "github":
		if cfg.GitHubClientID == "" || cfg.GitHubClientSecret == "" {
			return nil, fmt.Errorf("github oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  fmt.Sprintf("%s/api/v1/auth/oauth/github/callback", cfg.OAuthRedirectBase),
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}, nil
	case "google":
		if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
			return nil, fmt.Errorf("google oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  fmt.Sprintf("%s/api/v1/auth/oauth/google/callback", cfg.OAuthRedirectBase),
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

type oauthUser struct {
	ID        string
	Username  string
	Email     string
	AvatarURL string
}

func fetchOAuthUser(provider string, token *oauth2.Token) (*oauthUser, error) {
	switch strings.ToLower(provider) {
	case "github":
		return fetchGitHubUser(token)
	case "google":
		return fetchGoogleUser(token)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func fetchGitHubUser(token *oauth2.Token) (*oauthUser, error) {
	req, _ := http.NewRequest("GET", "https://api.github.com/user", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github user info request failed: %s", resp.Status)
	}

	var payload struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return &oauthUser{
		ID:        fmt.Sprintf("%d", payload.ID),
		Username:  payload.Login,
		Email:     payload.Email,
		AvatarURL: payload.AvatarURL,
	}, nil
}

func fetchGoogleUser(token *oauth2.Token) (*oauthUser, error) {
	req, _ := http.NewRequest("GET", "https://www.googleapis.com/oauth2/v2/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google user info request failed: %s", resp.Status)
	}

	var payload struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	username := payload.Name
	if username == "" {
		username = strings.SplitN(payload.Email, "@", 2)[0]
	}
	return &oauthUser{
		ID:        payload.ID,
		Username:  username,
		Email:     payload.Email,
		AvatarURL: payload.Picture,
	}, nil
}

func (a *AuthController) findOrCreateOAuthUser(provider string, data *oauthUser) (*models.User, error) {
	var user models.User
	err := a.db.Where("provider = ? AND provider_id = ?", provider, data.ID).First(&user).Error
	if err == nil {
		_ = a.db.Model(&user).Updates(map[string]interface{}{
			"email":      strings.TrimSpace(data.Email),
			"avatar_url": data.AvatarURL,
		})
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user = models.User{
		Username:   a.ensureUniqueUsername(data.Username, provider, data.ID),
		Email:      strings.TrimSpace(data.Email),
		Provider:   provider,
		ProviderID: data.ID,
		AvatarURL:  data.AvatarURL,
		Role:       models.RoleUser,
		IsActive:   true,
	}
	if err := a.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ensureUniqueUsername suffixes the provider and external id when the
// provider-supplied name is taken or unusable.
func (a *AuthController) ensureUniqueUsername(candidate, provider, externalID string) string {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || !validUsername(candidate) {
		candidate = provider + "_" + externalID
	}
	var existing models.User
	if err := a.db.Where("username = ?", candidate).First(&existing).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return candidate
	}
	return fmt.Sprintf("%s_%s_%s", candidate, provider, externalID)
}
