package handler

import (
	"errors"
	"strconv"

	"chat-room/internal/repository"
	"chat-room/internal/service"
	"chat-room/pkg/jwt"
	"chat-room/pkg/response"

	"github.com/gin-gonic/gin"
)

// MessageHandler 房间消息处理器
type MessageHandler struct {
	service *service.RoomService
}

// NewMessageHandler 创建MessageHandler实例
func NewMessageHandler(s *service.RoomService) *MessageHandler {
	return &MessageHandler{service: s}
}

// Send 发送消息（认证用户或游客）
func (h *MessageHandler) Send(c *gin.Context) {
	identity := jwt.GetIdentity(c)
	if identity == "" {
		response.BadRequest(c, "缺少发送者身份（登录或携带X-Guest-Name）")
		return
	}

	type req struct {
		Body      string `json:"body" binding:"required"`
		RepliedTo *uint  `json:"replied_to"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	message, err := h.service.SendMessage(identity, r.Body, r.RepliedTo)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRateLimited):
			response.TooManyRequests(c, "发送过于频繁，请稍后再试")
		case errors.Is(err, service.ErrStaleReference):
			response.BadRequest(c, "被回复的消息不存在")
		default:
			response.BadRequest(c, err.Error())
		}
		return
	}

	response.SuccessWithMessage(c, "消息发送成功", message)
}

// Edit 编辑消息（仅限发送者本人）
func (h *MessageHandler) Edit(c *gin.Context) {
	identity := jwt.GetIdentity(c)
	if identity == "" {
		response.BadRequest(c, "缺少发送者身份")
		return
	}

	id, ok := messageID(c)
	if !ok {
		return
	}

	type req struct {
		Body string `json:"body" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	message, err := h.service.EditMessage(id, identity, r.Body)
	if err != nil {
		h.writeRepoError(c, err)
		return
	}

	response.SuccessWithMessage(c, "消息已编辑", message)
}

// TogglePin 切换置顶（仅限认证用户）
func (h *MessageHandler) TogglePin(c *gin.Context) {
	if !jwt.IsAuthenticated(c) {
		response.Forbidden(c, "仅登录用户可以置顶")
		return
	}

	id, ok := messageID(c)
	if !ok {
		return
	}

	message, err := h.service.TogglePin(id)
	if err != nil {
		h.writeRepoError(c, err)
		return
	}

	response.SuccessWithMessage(c, "置顶状态已更新", message)
}

// Delete 软删除消息（仅限发送者本人）
func (h *MessageHandler) Delete(c *gin.Context) {
	identity := jwt.GetIdentity(c)
	if identity == "" {
		response.BadRequest(c, "缺少发送者身份")
		return
	}

	id, ok := messageID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteMessage(id, identity); err != nil {
		h.writeRepoError(c, err)
		return
	}

	response.SuccessWithMessage(c, "消息已删除", nil)
}

// ToggleReaction 切换表情反应（任何身份，包括游客）
func (h *MessageHandler) ToggleReaction(c *gin.Context) {
	identity := jwt.GetIdentity(c)
	if identity == "" {
		response.BadRequest(c, "缺少发送者身份（登录或携带X-Guest-Name）")
		return
	}

	id, ok := messageID(c)
	if !ok {
		return
	}

	type req struct {
		Symbol string `json:"symbol" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	message, err := h.service.ToggleReaction(id, r.Symbol, identity)
	if err != nil {
		h.writeRepoError(c, err)
		return
	}

	response.SuccessWithMessage(c, "表情反应已更新", message)
}

// History 获取房间最近消息（初始批量加载）
func (h *MessageHandler) History(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 {
		limit = 50
	}

	messages, err := h.service.History(limit)
	if err != nil {
		response.InternalError(c, "获取历史消息失败")
		return
	}

	response.SuccessWithMessage(c, "获取历史消息成功", messages)
}

// SetAssistantMode 设置助手回复模式偏好
func (h *MessageHandler) SetAssistantMode(c *gin.Context) {
	identity := jwt.GetIdentity(c)
	if identity == "" {
		response.BadRequest(c, "缺少发送者身份")
		return
	}

	type req struct {
		Mode string `json:"mode" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.service.SetAssistantMode(identity, r.Mode); err != nil {
		if errors.Is(err, service.ErrInvalidMode) {
			response.BadRequest(c, "无效的助手模式")
			return
		}
		response.InternalError(c, "保存助手模式失败")
		return
	}

	response.SuccessWithMessage(c, "助手模式已保存", gin.H{"mode": r.Mode})
}

// messageID 解析路径参数中的消息ID
func messageID(c *gin.Context) (uint, bool) {
	idStr := c.Param("message_id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid message ID")
		return 0, false
	}
	return uint(id), true
}

// writeRepoError 将仓储层错误映射为响应
func (h *MessageHandler) writeRepoError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrMessageNotFound):
		response.NotFound(c, "消息不存在")
	case errors.Is(err, repository.ErrPermissionDenied):
		response.Forbidden(c, "只能操作自己发送的消息")
	default:
		response.BadRequest(c, err.Error())
	}
}
