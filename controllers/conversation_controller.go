package controllers

import (
	"net/http"
	"strconv"

	"github.com/Roland735/cribmatch-website-sub000/services"
	"github.com/Roland735/cribmatch-website-sub000/utils"
	"github.com/gin-gonic/gin"
)

const maxHistoryLimit = 200

// ConversationController exposes chatbot state and message history to admins and agents
type ConversationController struct {
	store       services.ConversationStore
	countryCode string
}

// NewConversationController creates the controller
func NewConversationController(store services.ConversationStore, defaultCountryCode string) *ConversationController {
	return &ConversationController{store: store, countryCode: defaultCountryCode}
}

// GetConversation handles GET /api/v1/conversations/:phone - the current state snapshot
func (cc *ConversationController) GetConversation(c *gin.Context) {
	phone, ok := cc.phoneParam(c)
	if !ok {
		return
	}

	snap, err := cc.store.GetState(c.Request.Context(), phone)
	if err != nil {
		c.PureJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to load conversation",
			},
		})
		return
	}

	c.PureJSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"phone":      phone,
			"state":      snap.State,
			"metadata":   snap.Metadata,
			"version":    snap.Version,
			"updated_at": snap.UpdatedAt,
		},
	})
}

// ListConversationMessages handles GET /api/v1/conversations/:phone/messages - oldest first
func (cc *ConversationController) ListConversationMessages(c *gin.Context) {
	phone, ok := cc.phoneParam(c)
	if !ok {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxHistoryLimit {
			c.PureJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "VALIDATION_ERROR",
					"message": "limit must be between 1 and 200",
				},
			})
			return
		}
		limit = parsed
	}

	messages, err := cc.store.History(c.Request.Context(), phone, limit)
	if err != nil {
		c.PureJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to load messages",
			},
		})
		return
	}

	c.PureJSON(http.StatusOK, gin.H{
		"success": true,
		"data":    messages,
		"count":   len(messages),
	})
}

func (cc *ConversationController) phoneParam(c *gin.Context) (string, bool) {
	phone := utils.CanonicalPhone(c.Param("phone"), cc.countryCode)
	if phone == "" {
		c.PureJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "A phone number is required",
			},
		})
		return "", false
	}
	return phone, true
}
