package models

import (
	"fmt"
	"strings"
	"time"
)

// Role enumerates the closed set of account roles. Keeping the set closed (as
// opposed to free-form strings) lets route declarations be checked at compile
// time.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole normalizes a raw role string into a Role, rejecting anything
// outside the closed set.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

type User struct {
	ID                    string     `json:"id"`
	UserName              string     `json:"userName"`
	FirstName             string     `json:"firstName"`
	LastName              string     `json:"lastName"`
	Slug                  string     `json:"slug"`
	Email                 string     `json:"email"`
	PasswordHash          string     `json:"passwordHash,omitempty"`
	Role                  Role       `json:"role"`
	Videos                []string   `json:"videos"`
	Subscribers           []string   `json:"subscribers"`
	SubscribedChannels    []string   `json:"subscribedChannels"`
	LoginIPs              []string   `json:"loginIPs"`
	Phone                 string     `json:"phone,omitempty"`
	Age                   int        `json:"age"`
	ProfileImage          string     `json:"profileImage,omitempty"`
	CoverImage            string     `json:"coverImage,omitempty"`
	PasswordChangedAt     *time.Time `json:"passwordChangedAt,omitempty"`
	PasswordResetCodeHash string     `json:"passwordResetCodeHash,omitempty"`
	PasswordResetExpires  *time.Time `json:"passwordResetExpires,omitempty"`
	PasswordResetVerified bool       `json:"passwordResetVerified,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// IsAdmin reports whether the user carries the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

type Video struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	Name       string    `json:"name"`
	VideoPath  string    `json:"videoPath"`
	Tags       []string  `json:"tags"`
	Likes      []string  `json:"likes"`
	Dislikes   []string  `json:"dislikes"`
	Views      []string  `json:"views"`
	Comments   []string  `json:"comments"`
	CategoryID string    `json:"categoryId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ViewCount is derived from the distinct viewer IP set.
func (v Video) ViewCount() int {
	return len(v.Views)
}

// CommentCount is derived from the denormalized comment id list.
func (v Video) CommentCount() int {
	return len(v.Comments)
}

type Comment struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	UserID    string    `json:"userId"`
	VideoID   string    `json:"videoId"`
	Likes     []string  `json:"likes"`
	Dislikes  []string  `json:"dislikes"`
	Replies   []string  `json:"replies"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ReplyCount is derived from the denormalized reply id list.
func (c Comment) ReplyCount() int {
	return len(c.Replies)
}

type Reply struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	UserID    string    `json:"userId"`
	CommentID string    `json:"commentId"`
	Likes     []string  `json:"likes"`
	Dislikes  []string  `json:"dislikes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Playlist struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Name      string    `json:"name"`
	Videos    []string  `json:"videos"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
