package user

import "time"

type Identity struct {
	ID           int64      `gorm:"primaryKey"`
	Username     string     `gorm:"column:username;uniqueIndex;not null"`
	DisplayName  string     `gorm:"column:display_name;not null"`
	Email        string     `gorm:"column:email"`
	Role         string     `gorm:"column:role;not null;default:user"`
	DepartmentID *int64     `gorm:"column:department_id"`
	Status       string     `gorm:"column:status;not null;default:active"`
	PasswordHash string     `gorm:"column:password_hash"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Identity) TableName() string {
	return "identities"
}

type Department struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"column:name;uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Department) TableName() string {
	return "departments"
}
