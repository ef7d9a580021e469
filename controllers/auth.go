package controllers

import (
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/etiditalex/CMFagency-sub002/models"
	"github.com/etiditalex/CMFagency-sub002/utils"
)

// AuthController handles portal login. Buyers never authenticate; only
// members (campaign owners and staff) hold accounts.
type AuthController struct {
	DB *gorm.DB
}

func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{DB: db}
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login verifies credentials and returns a bearer token. Unknown email and
// wrong password produce the same response.
func (c *AuthController) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var member models.Member
	err := c.DB.Where("email = ? AND active = ?", req.Email, true).First(&member).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			log.Printf("[auth] lookup %s: %v", req.Email, err)
		}
		// Burn a comparison anyway to keep timing flat.
		bcrypt.CompareHashAndPassword([]byte("$2a$10$xKq0RHkZkVJ4mEWidcO1u.kkkmb7XRjyIAfY0Yqyi4eEf4fFOArDC"), []byte(req.Password))
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(member.PasswordHash), []byte(req.Password)); err != nil {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Invalid credentials"})
		return
	}

	token, err := utils.GenerateAccessToken(member.ID, member.Role)
	if err != nil {
		log.Printf("[auth] token for member %d: %v", member.ID, err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Failed to issue token"})
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Login successful", Data: map[string]interface{}{
		"token": token,
		"member": map[string]interface{}{
			"id":    member.ID,
			"email": member.Email,
			"name":  member.Name,
			"role":  member.Role,
		},
	}})
}

// Logout blacklists the presented token's jti until its expiry. Without Redis
// configured revocation is a no-op and logout only clears client state.
func (c *AuthController) Logout(w http.ResponseWriter, r *http.Request) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Missing bearer token"})
		return
	}
	tokenStr := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))

	_, claims, err := utils.ValidateAccessToken(tokenStr)
	if err != nil {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Invalid token"})
		return
	}

	jti, _ := claims["jti"].(string)
	var until time.Time
	if exp, ok := claims["exp"].(float64); ok {
		until = time.Unix(int64(exp), 0)
	}
	if err := utils.RevokeToken(jti, until); err != nil {
		log.Printf("[auth] revoke jti %s: %v", jti, err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Failed to revoke token"})
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Logged out"})
}
