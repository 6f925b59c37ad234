package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kmt-marshals/backend/internal/models"
	"github.com/kmt-marshals/backend/pkg/response"
	"github.com/kmt-marshals/backend/pkg/storage"
	"github.com/kmt-marshals/backend/pkg/utils"
)

// SignupRequest is the body for POST /auth/signup.
type SignupRequest struct {
	EmployeeID   string `json:"employee_id" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=6"`
	FullName     string `json:"full_name" binding:"required"`
	Phone        string `json:"phone"`
	MarshalTypes string `json:"marshal_types"` // e.g. "circuit,rescue"
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest is the body for PATCH /users/me.
type UpdateProfileRequest struct {
	FullName     string `json:"full_name"`
	Phone        string `json:"phone"`
	MarshalTypes string `json:"marshal_types"`
	PushToken    string `json:"push_token"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// Handler handles auth and user profile HTTP endpoints.
type Handler struct {
	repo   *Repository
	jwt    *JWTService
	s3     *storage.S3
	logger *zap.Logger
}

// NewHandler creates an auth handler. s3 may be nil when photo storage is disabled.
func NewHandler(repo *Repository, jwt *JWTService, s3 *storage.S3, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, jwt: jwt, s3: s3, logger: logger}
}

// Signup handles POST /auth/signup. New accounts are always marshals;
// admins are promoted out of band.
func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	if _, err := h.repo.GetByEmail(c.Request.Context(), req.Email); err == nil {
		response.Conflict(c, "email already registered")
		return
	}
	if _, err := h.repo.GetByEmployeeID(c.Request.Context(), req.EmployeeID); err == nil {
		response.Conflict(c, "employee id already registered")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	user := &models.User{
		EmployeeID:   req.EmployeeID,
		Email:        req.Email,
		Password:     hash,
		FullName:     req.FullName,
		Phone:        req.Phone,
		MarshalTypes: req.MarshalTypes,
		Role:         models.RoleMarshal,
		IsActive:     true,
	}
	if err := h.repo.Create(c.Request.Context(), user); err != nil {
		h.logger.Error("create user failed", zap.Error(err), zap.String("employee_id", req.EmployeeID))
		response.Internal(c, "failed to create user")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email, string(user.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.Created(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Unauthorized(c, "invalid email or password")
		return
	}
	if !user.IsActive {
		response.Forbidden(c, "account is deactivated")
		return
	}
	if !utils.CheckPassword(req.Password, user.Password) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email, string(user.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Me handles GET /users/me.
func (h *Handler) Me(c *gin.Context) {
	userID := currentUserID(c)
	user, err := h.repo.GetByID(c.Request.Context(), userID)
	if err != nil {
		response.NotFound(c, "user not found")
		return
	}
	data := gin.H{"user": user.ToPublic()}
	if h.s3 != nil && user.PhotoKey != "" {
		if url, err := h.s3.PresignPhotoURL(c.Request.Context(), user.PhotoKey); err == nil {
			data["photo_url"] = url
		}
	}
	response.OK(c, data)
}

// UpdateMe handles PATCH /users/me.
func (h *Handler) UpdateMe(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := currentUserID(c)
	if err := h.repo.UpdateProfile(c.Request.Context(), userID, req.FullName, req.Phone, req.MarshalTypes); err != nil {
		response.Internal(c, "failed to update profile")
		return
	}
	if req.PushToken != "" {
		if err := h.repo.UpdatePushToken(c.Request.Context(), userID, req.PushToken); err != nil {
			h.logger.Warn("update push token failed", zap.Error(err), zap.String("user_id", userID.String()))
		}
	}
	user, err := h.repo.GetByID(c.Request.Context(), userID)
	if err != nil {
		response.NotFound(c, "user not found")
		return
	}
	response.OK(c, user.ToPublic())
}

// UploadPhoto handles POST /users/me/photo (multipart form, field "photo").
func (h *Handler) UploadPhoto(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "photo storage not configured")
		return
	}
	file, err := c.FormFile("photo")
	if err != nil {
		response.BadRequest(c, "photo file required")
		return
	}
	if file.Size > storage.MaxPhotoFileSize {
		response.BadRequest(c, "photo exceeds maximum size")
		return
	}
	contentType := file.Header.Get("Content-Type")
	if !storage.ValidatePhotoType(contentType, file.Filename) {
		response.BadRequest(c, "unsupported photo type")
		return
	}

	src, err := file.Open()
	if err != nil {
		response.Internal(c, "failed to read upload")
		return
	}
	defer src.Close()

	userID := currentUserID(c)
	key := storage.PhotoKey(userID.String(), file.Filename)
	if _, err := h.s3.UploadPhoto(c.Request.Context(), key, contentType, src); err != nil {
		h.logger.Error("photo upload failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to store photo")
		return
	}
	if err := h.repo.UpdatePhotoKey(c.Request.Context(), userID, key); err != nil {
		response.Internal(c, "failed to save photo reference")
		return
	}

	url, _ := h.s3.PresignPhotoURL(c.Request.Context(), key)
	response.OK(c, gin.H{"photo_key": key, "photo_url": url})
}

// List handles GET /users (admin only).
func (h *Handler) List(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	list, err := h.repo.List(c.Request.Context(), activeOnly)
	if err != nil {
		response.Internal(c, "failed to list users")
		return
	}
	c.JSON(http.StatusOK, response.Body{Success: true, Data: list})
}

// currentUserID reads the authenticated user ID set by the JWT middleware.
func currentUserID(c *gin.Context) uuid.UUID {
	v, _ := c.Get("user_id")
	id, _ := v.(uuid.UUID)
	return id
}
