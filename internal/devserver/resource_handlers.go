package devserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/consultadmin/consultadmin/internal/cli/client"
)

const usersResource = "users"

// resourceMiddleware resolves the :resource path parameter
func (s *Server) resourceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("resource")
		r, err := client.LookupResource(name)
		if err != nil || r.Name != name {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Unknown resource %q", name)})
			return
		}
		c.Set("resource", r)
		c.Next()
	}
}

func resourceFrom(c *gin.Context) client.Resource {
	return c.MustGet("resource").(client.Resource)
}

func (s *Server) listRecords(c *gin.Context) {
	r := resourceFrom(c)

	if r.Name == usersResource {
		var accounts []Account
		if err := s.db.Order("created_at ASC").Find(&accounts).Error; err != nil {
			s.internalError(c, err, "Failed to list users")
			return
		}
		records := make([]map[string]any, len(accounts))
		for i := range accounts {
			records[i] = accounts[i].record()
		}
		c.JSON(http.StatusOK, records)
		return
	}

	var docs []Document
	if err := s.db.Where("resource = ?", r.Name).Order("created_at ASC").Find(&docs).Error; err != nil {
		s.internalError(c, err, "Failed to list records")
		return
	}
	records := make([]map[string]any, 0, len(docs))
	for i := range docs {
		rec, err := docs[i].record()
		if err != nil {
			s.internalError(c, err, "Failed to decode record")
			return
		}
		records = append(records, rec)
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) getRecord(c *gin.Context) {
	r := resourceFrom(c)
	id := c.Param("id")

	if r.Name == usersResource {
		account, ok := s.findAccount(c, id)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, account.record())
		return
	}

	doc, ok := s.findDocument(c, r, id)
	if !ok {
		return
	}
	rec, err := doc.record()
	if err != nil {
		s.internalError(c, err, "Failed to decode record")
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) createRecord(c *gin.Context) {
	r := resourceFrom(c)

	var payload client.Record
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := r.ValidatePayload(payload, false); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if r.Name == usersResource {
		password, _ := payload["password"].(string)
		if err := s.validator.Var(password, "required,min=8"); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 8 characters"})
			return
		}
		account, err := s.CreateAccount(fmt.Sprint(payload["name"]), fmt.Sprint(payload["email"]), password, fmt.Sprint(payload["role"]))
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, account.record())
		return
	}

	doc := &Document{Resource: r.Name}
	if err := doc.setFields(payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.db.Create(doc).Error; err != nil {
		s.internalError(c, err, "Failed to create record")
		return
	}

	rec, err := doc.record()
	if err != nil {
		s.internalError(c, err, "Failed to decode record")
		return
	}
	s.logger.Info().Str("resource", r.Name).Str("id", doc.ID).Msg("Record created")
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) updateRecord(c *gin.Context) {
	r := resourceFrom(c)
	id := c.Param("id")

	var payload client.Record
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := r.ValidatePayload(payload, true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if r.Name == usersResource {
		s.updateAccount(c, id, payload)
		return
	}

	doc, ok := s.findDocument(c, r, id)
	if !ok {
		return
	}
	fields, err := doc.fields()
	if err != nil {
		s.internalError(c, err, "Failed to decode record")
		return
	}
	for k, v := range payload {
		fields[k] = v
	}
	if err := doc.setFields(fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.db.Save(doc).Error; err != nil {
		s.internalError(c, err, "Failed to update record")
		return
	}

	rec, err := doc.record()
	if err != nil {
		s.internalError(c, err, "Failed to decode record")
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) updateAccount(c *gin.Context, id string, payload client.Record) {
	account, ok := s.findAccount(c, id)
	if !ok {
		return
	}

	if v, ok := payload["name"].(string); ok {
		account.Name = v
	}
	if v, ok := payload["email"].(string); ok {
		account.Email = v
	}
	if v, ok := payload["role"].(string); ok {
		account.Role = v
	}
	if v, ok := payload["password"].(string); ok {
		if err := s.validator.Var(v, "min=8"); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 8 characters"})
			return
		}
		hash, err := HashPassword(v)
		if err != nil {
			s.internalError(c, err, "Failed to hash password")
			return
		}
		account.PasswordHash = hash
	}

	if err := s.db.Save(account).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Failed to update user"})
		return
	}
	c.JSON(http.StatusOK, account.record())
}

func (s *Server) deleteRecord(c *gin.Context) {
	r := resourceFrom(c)
	id := c.Param("id")

	if r.Name == usersResource {
		sessionData, _ := GetSessionData(c)
		if sessionData != nil && id == sessionData.UserID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete yourself"})
			return
		}
		account, ok := s.findAccount(c, id)
		if !ok {
			return
		}
		if err := s.db.Delete(account).Error; err != nil {
			s.internalError(c, err, "Failed to delete user")
			return
		}
		c.Status(http.StatusNoContent)
		return
	}

	doc, ok := s.findDocument(c, r, id)
	if !ok {
		return
	}
	if err := s.db.Delete(doc).Error; err != nil {
		s.internalError(c, err, "Failed to delete record")
		return
	}
	s.logger.Info().Str("resource", r.Name).Str("id", id).Msg("Record deleted")
	c.Status(http.StatusNoContent)
}

func (s *Server) findAccount(c *gin.Context, id string) (*Account, bool) {
	var account Account
	if err := s.db.Where("id = ?", id).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return nil, false
		}
		s.internalError(c, err, "Failed to find user")
		return nil, false
	}
	return &account, true
}

func (s *Server) findDocument(c *gin.Context, r client.Resource, id string) (*Document, bool) {
	var doc Document
	if err := s.db.Where("resource = ? AND id = ?", r.Name, id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
			return nil, false
		}
		s.internalError(c, err, "Failed to find record")
		return nil, false
	}
	return &doc, true
}

func (s *Server) internalError(c *gin.Context, err error, msg string) {
	s.logger.Error().Err(err).Msg(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
