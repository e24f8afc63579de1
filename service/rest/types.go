package rest

// Request and response bodies of the chat backend's HTTP surface. Field
// names follow the backend's JSON contract.

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Nickname string `json:"nickname,omitempty"`
}

type LogoutRequest struct {
	UserID int64  `json:"userId"`
	Token  string `json:"token,omitempty"`
}

type ChangePasswordRequest struct {
	UserID      int64  `json:"userId"`
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type TokenRequest struct {
	Token string `json:"token"`
}

type UserInfo struct {
	UserID     int64  `json:"userId"`
	Username   string `json:"username"`
	Nickname   string `json:"nickname"`
	AvatarURL  string `json:"avatarUrl,omitempty"`
	Signature  string `json:"signature,omitempty"`
	Role       int    `json:"role,omitempty"`
	Status     int    `json:"status"`
	CreateTime int64  `json:"createTime"`
	UpdateTime int64  `json:"updateTime"`
}

type LoginResponse struct {
	User            UserInfo `json:"user"`
	Token           string   `json:"token"`
	TokenExpireTime int64    `json:"tokenExpireTime"`
}

// Room type and status constants used by the backend.
const (
	RoomTypePublic  = "PUBLIC_ROOM"
	RoomTypePrivate = "PRIVATE_ROOM"

	RoomStatusActive    = "ACTIVE"
	RoomStatusDisbanded = "DISBANDED"
	RoomStatusDeleted   = "DELETED"
)

type RoomInfo struct {
	RoomID          int64  `json:"roomId"`
	RoomName        string `json:"roomName"`
	Description     string `json:"description,omitempty"`
	OwnerID         int64  `json:"ownerId"`
	RoomType        string `json:"roomType"`
	CreateTimeStamp int64  `json:"createTimeStamp"`
	Status          string `json:"status"`
}

type CreateRoomRequest struct {
	RoomName    string `json:"roomName"`
	Description string `json:"description,omitempty"`
	RoomType    string `json:"roomType,omitempty"`
}
