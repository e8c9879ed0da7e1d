package handler

import (
	"chat-room/internal/service"
	"chat-room/pkg/redis"
	"chat-room/pkg/response"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	service *service.UserService
	room    string
}

func NewUserHandler(s *service.UserService, room string) *UserHandler {
	return &UserHandler{service: s, room: room}
}

// Register 用户注册
func (h *UserHandler) Register(c *gin.Context) {
	type req struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email"`
		Password string `json:"password" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	user, token, err := h.service.Register(r.Username, r.Email, r.Password)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	response.SuccessWithMessage(c, "注册成功", &response.RegisterResponse{
		User:        response.FilterUserInfo(user),
		AccessToken: token,
	})
}

// Login 用户登录
func (h *UserHandler) Login(c *gin.Context) {
	type req struct {
		UsernameOrEmail string `json:"usernameOrEmail" binding:"required"`
		Password        string `json:"password" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	user, token, err := h.service.Login(r.UsernameOrEmail, r.Password)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}

	response.SuccessWithMessage(c, "登录成功", &response.LoginResponse{
		User:        response.FilterUserInfo(user),
		AccessToken: token,
	})
}

// GetPresence 获取房间当前在场人数与成员
func (h *UserHandler) GetPresence(c *gin.Context) {
	count, err := redis.PresenceCount(h.room)
	if err != nil {
		response.InternalError(c, "获取在场人数失败")
		return
	}

	entries, err := redis.GetPresenceEntries(h.room)
	if err != nil {
		response.InternalError(c, "获取在场成员失败")
		return
	}

	var members []gin.H
	for _, entry := range entries {
		members = append(members, gin.H{
			"conn_id":   entry.ConnID,
			"identity":  entry.Identity,
			"joined_at": entry.JoinedAt.Format("2006-01-02 15:04:05"),
		})
	}

	response.SuccessWithMessage(c, "获取在场信息成功", gin.H{
		"count":   count,
		"members": members,
	})
}
