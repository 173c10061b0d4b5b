package storage

import (
	"context"
	"time"

	"clipriver/internal/models"
)

// Repository exposes the datastore operations required by API handlers.
type Repository interface {
	Ping(ctx context.Context) error

	CreateUser(params CreateUserParams) (models.User, error)
	AuthenticateUser(email, password, loginIP string) (models.User, error)
	ListUsers() []models.User
	GetUser(id string) (models.User, bool)
	FindUserByEmail(email string) (models.User, bool)
	UpdateUser(id string, update UserUpdate) (models.User, error)
	ChangePassword(id, currentPassword, newPassword string) (models.User, error)
	DeleteUser(id string) error

	Subscribe(viewerID, channelID string) (models.User, error)
	Unsubscribe(viewerID, channelID string) (models.User, error)

	BeginPasswordReset(email string, ttl time.Duration) (models.User, string, error)
	ClearPasswordReset(id string) error
	VerifyResetCode(email, code string) error
	ResetPassword(email, newPassword string) (models.User, error)

	CreateVideo(params CreateVideoParams) (models.Video, error)
	ListVideos() []models.Video
	GetVideo(id string) (models.Video, bool)
	UpdateVideo(id string, update VideoUpdate) (models.Video, error)
	DeleteVideo(id string) error
	LikeVideo(videoID, userID string) (models.Video, error)
	DislikeVideo(videoID, userID string) (models.Video, error)
	RecordView(videoID, viewerIP string) (models.Video, error)
	RandomVideos(limit int) []models.Video
	TrendingVideos(limit int) []models.Video
	VideosByTag(tag string) []models.Video
	VideosByCategory(categoryID string) ([]models.Video, error)
	VideosByOwner(ownerID string) ([]models.Video, error)

	CreateComment(videoID, userID, content string) (models.Comment, error)
	GetComment(id string) (models.Comment, bool)
	CommentsByVideo(videoID string) ([]models.Comment, error)
	UpdateComment(id, content string) (models.Comment, error)
	DeleteComment(id string) error
	LikeComment(commentID, userID string) (models.Comment, error)
	DislikeComment(commentID, userID string) (models.Comment, error)

	CreateReply(commentID, userID, content string) (models.Reply, error)
	GetReply(id string) (models.Reply, bool)
	RepliesByComment(commentID string) ([]models.Reply, error)
	UpdateReply(id, content string) (models.Reply, error)
	DeleteReply(id string) error
	LikeReply(replyID, userID string) (models.Reply, error)
	DislikeReply(replyID, userID string) (models.Reply, error)

	CreatePlaylist(ownerID, name string) (models.Playlist, error)
	GetPlaylist(id string) (models.Playlist, bool)
	PlaylistsByOwner(ownerID string) ([]models.Playlist, error)
	RenamePlaylist(id, name string) (models.Playlist, error)
	AddToPlaylist(playlistID, videoID string) (models.Playlist, error)
	RemoveFromPlaylist(playlistID, videoID string) (models.Playlist, error)
	DeletePlaylist(id string) error

	CreateCategory(name, description, userID string) (models.Category, error)
	ListCategories() []models.Category
	GetCategory(id string) (models.Category, bool)
	UpdateCategory(id string, update CategoryUpdate) (models.Category, error)
	DeleteCategory(id string) error
}

var _ Repository = (*Storage)(nil)
