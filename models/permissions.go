package models

// CanMutate reports whether the actor may edit or delete an entity owned by
// ownerID: owners may touch their own content, admins may touch anything.
func CanMutate(actorID uint, actorRole string, ownerID uint) bool {
	return actorID == ownerID || actorRole == RoleAdmin
}

// CanPost reports whether new posts are accepted in the thread. Locked threads
// reject posts from everyone, including the thread author.
func CanPost(t *Thread) bool {
	return !t.IsLocked
}

// IsAdmin reports whether the role carries administrative rights.
func IsAdmin(role string) bool {
	return role == RoleAdmin
}
