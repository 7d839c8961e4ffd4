package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/serviconsa/portal_backend/config"
	"bitbucket.org/serviconsa/portal_backend/utils"
	"gorm.io/gorm"
)

// User is a portal account. Role is the original single-valued field; Roles
// is the later multi-valued one. Both are live in stored documents, so any
// role-group resolution has to union the two predicates.
type User struct {
	ID       int      `gorm:"primary_key" json:"id"`
	Nombre   string   `gorm:"size:255;not null" json:"nombre"`
	Email    string   `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password string   `gorm:"size:255;not null" json:"-"`
	Role     string   `gorm:"size:50" json:"role"`
	Roles    []string `gorm:"serializer:json;type:json" json:"roles"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Nombre   string   `json:"nombre" binding:"required"`
	Email    string   `json:"email" binding:"required,email"`
	Password string   `json:"password" binding:"required,min=8"`
	Role     string   `json:"role" binding:"required"`
	Roles    []string `json:"roles"`
}

func GetUserById(ctx context.Context, db *gorm.DB, id int) (*User, error) {
	var user User
	err := db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUsersByRole resolves a role group: the union of users whose
// single-valued role equals the name and users whose multi-valued roles
// contain it, keyed by user id so nobody is notified twice.
func GetUsersByRole(ctx context.Context, db *gorm.DB, role string) ([]*User, error) {
	var single []*User
	if err := db.WithContext(ctx).Where("role = ?", role).Find(&single).Error; err != nil {
		return nil, err
	}

	var multi []*User
	if err := db.WithContext(ctx).
		Where("JSON_CONTAINS(roles, JSON_QUOTE(?))", role).
		Find(&multi).Error; err != nil {
		return nil, err
	}

	return MergeRoleGroups(single, multi), nil
}

// MergeRoleGroups unions two resolved groups by user id, preserving first
// appearance order.
func MergeRoleGroups(groups ...[]*User) []*User {
	seen := make(map[int]bool)
	var merged []*User
	for _, group := range groups {
		for _, user := range group {
			if user == nil || seen[user.ID] {
				continue
			}
			seen[user.ID] = true
			merged = append(merged, user)
		}
	}
	return merged
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	db := config.GetDB()

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := User{
		Nombre:   input.Nombre,
		Email:    input.Email,
		Password: string(hashed),
		Role:     input.Role,
		Roles:    input.Roles,
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func Login(ctx context.Context, email string, password string) (string, *User, error) {
	db := config.GetDB()

	var user User
	err := db.WithContext(ctx).First(&user, "email = ?", email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, utils.ErrorRecordNotFound
		}
		return "", nil, err
	}

	if err := utils.ComparePassword(user.Password, password); err != nil {
		return "", nil, errors.New("invalid credentials")
	}

	token, err := utils.JwtGenerate(user.ID, user.Nombre, user.Email, user.Role)
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}
