package controllers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"OmniChat/middleware"
	"OmniChat/pkg/store"
)

// storeErrStatus maps store failures to the stable public status codes; any
// other error is a generic 500 with the detail kept in the log.
func storeErrStatus(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "conversation not found"
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	}
	return http.StatusInternalServerError, "internal error"
}

func CreateConversation(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := middleware.CurrentUserID(c)

		var body struct {
			Title string `json:"title"`
		}
		// an empty body is fine; the title defaults
		_ = c.ShouldBindJSON(&body)

		conv, err := st.CreateConversation(uid, body.Title)
		if err != nil {
			log.Printf("[conversations] create failed for user %s: %v", uid, err)
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "internal error"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"conversation": conv})
	}
}

func ListConversations(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := middleware.CurrentUserID(c)

		convs, err := st.ListConversations(uid)
		if err != nil {
			log.Printf("[conversations] list failed for user %s: %v", uid, err)
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversations": convs})
	}
}

func RenameConversation(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := middleware.CurrentUserID(c)

		var body struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.ID) == "" || strings.TrimSpace(body.Title) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "id and title are required"})
			return
		}

		conv, err := st.RenameConversation(uid, body.ID, body.Title)
		if err != nil {
			status, msg := storeErrStatus(err)
			if status == http.StatusInternalServerError {
				log.Printf("[conversations] rename failed for user %s: %v", uid, err)
			}
			c.JSON(status, gin.H{"msg": msg})
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversation": conv})
	}
}

func DeleteConversation(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := middleware.CurrentUserID(c)

		var body struct {
			ID string `json:"id"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.ID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "id is required"})
			return
		}

		if err := st.DeleteConversation(uid, body.ID); err != nil {
			status, msg := storeErrStatus(err)
			if status == http.StatusInternalServerError {
				log.Printf("[conversations] delete failed for user %s: %v", uid, err)
			}
			c.JSON(status, gin.H{"msg": msg})
			return
		}
		c.JSON(http.StatusOK, gin.H{"msg": "conversation deleted"})
	}
}

func ListMessages(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := middleware.CurrentUserID(c)

		convID := strings.TrimSpace(c.Query("conversationId"))
		if convID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "conversationId is required"})
			return
		}

		msgs, err := st.ListMessagesForUser(uid, convID)
		if err != nil {
			status, msg := storeErrStatus(err)
			if status == http.StatusInternalServerError {
				log.Printf("[messages] list failed for user %s: %v", uid, err)
			}
			c.JSON(status, gin.H{"msg": msg})
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": msgs})
	}
}
