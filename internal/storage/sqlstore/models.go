package sqlstore

import (
	"time"

	"github.com/bluelamp/cligate/internal/core/domain"
)

type credentialModel struct {
	ID                 string     `gorm:"primaryKey;type:varchar(40)"`
	UserID             string     `gorm:"index;not null"`
	TokenHash          string     `gorm:"uniqueIndex;not null"`
	SessionID          string     `gorm:"type:varchar(40)"`
	ClientType         string     `gorm:"type:varchar(20)"`
	CreatedAt          time.Time  `gorm:"autoCreateTime:false"`
	ExpiresAt          time.Time  `gorm:"index"`
	LastUsedAt         *time.Time
	UsageCount         int64
	DeviceName         string
	DevicePlatform     string
	DeviceArch         string
	DeviceHostname     string
	DeviceIP           string
	DeviceUserAgent    string
	IsActive           bool `gorm:"index"`
	DeactivationReason string
	DeactivatedAt      *time.Time
}

func (credentialModel) TableName() string { return "cli_credentials" }

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func toCredentialModel(c *domain.CliCredential) *credentialModel {
	return &credentialModel{
		ID:                 c.ID,
		UserID:             c.UserID,
		TokenHash:          c.TokenHash,
		SessionID:          c.SessionID,
		ClientType:         string(c.ClientType),
		CreatedAt:          c.CreatedAt.UTC(),
		ExpiresAt:          c.ExpiresAt.UTC(),
		LastUsedAt:         utcPtr(c.LastUsedAt),
		UsageCount:         c.UsageCount,
		DeviceName:         c.DeviceInfo.Name,
		DevicePlatform:     c.DeviceInfo.Platform,
		DeviceArch:         c.DeviceInfo.Arch,
		DeviceHostname:     c.DeviceInfo.Hostname,
		DeviceIP:           c.DeviceInfo.IPAddress,
		DeviceUserAgent:    c.DeviceInfo.UserAgent,
		IsActive:           c.IsActive,
		DeactivationReason: string(c.DeactivationReason),
		DeactivatedAt:      utcPtr(c.DeactivatedAt),
	}
}

func (m *credentialModel) toDomain() *domain.CliCredential {
	return &domain.CliCredential{
		ID:         m.ID,
		UserID:     m.UserID,
		TokenHash:  m.TokenHash,
		SessionID:  m.SessionID,
		ClientType: domain.ClientType(m.ClientType),
		CreatedAt:  m.CreatedAt.UTC(),
		ExpiresAt:  m.ExpiresAt.UTC(),
		LastUsedAt: utcPtr(m.LastUsedAt),
		UsageCount: m.UsageCount,
		DeviceInfo: domain.DeviceInfo{
			Name:      m.DeviceName,
			Platform:  m.DevicePlatform,
			Arch:      m.DeviceArch,
			Hostname:  m.DeviceHostname,
			IPAddress: m.DeviceIP,
			UserAgent: m.DeviceUserAgent,
		},
		IsActive:           m.IsActive,
		DeactivationReason: domain.DeactivationReason(m.DeactivationReason),
		DeactivatedAt:      utcPtr(m.DeactivatedAt),
	}
}

type userModel struct {
	ID             string `gorm:"primaryKey"`
	Email          string `gorm:"uniqueIndex;not null"`
	Name           string
	Role           string
	Status         string `gorm:"not null"`
	PasswordHash   string `gorm:"not null"`
	BlockReason    string
	BlockCanAppeal bool
	BlockSource    string
	BlockedAt      *time.Time
}

func (userModel) TableName() string { return "users" }

func (m *userModel) toDomain() *domain.User {
	u := &domain.User{
		ID:     m.ID,
		Email:  m.Email,
		Name:   m.Name,
		Role:   m.Role,
		Status: domain.UserStatus(m.Status),
	}
	if m.BlockedAt != nil {
		u.Block = &domain.BlockInfo{
			Reason:    m.BlockReason,
			CanAppeal: m.BlockCanAppeal,
			Source:    m.BlockSource,
			BlockedAt: m.BlockedAt.UTC(),
		}
	}
	return u
}

type auditModel struct {
	ID               string    `gorm:"primaryKey;type:varchar(26)"`
	Timestamp        time.Time `gorm:"index"`
	TrapKeyUsed      string    `gorm:"index"`
	TrapClass        string
	ResourceID       string
	IdentifiedUserID *string `gorm:"index"`
	IPAddress        string
	UserAgent        string
	Endpoint         string
	Method           string
	TrackingID       string
	ResponseType     string `gorm:"index"`
}

func (auditModel) TableName() string { return "trap_access_logs" }

func toAuditModel(l *domain.TrapAccessLog) *auditModel {
	m := &auditModel{
		ID:           l.ID,
		Timestamp:    l.Timestamp.UTC(),
		TrapKeyUsed:  l.TrapKeyUsed,
		TrapClass:    l.TrapClass,
		ResourceID:   l.ResourceID,
		IPAddress:    l.IPAddress,
		UserAgent:    l.UserAgent,
		Endpoint:     l.Endpoint,
		Method:       l.Method,
		TrackingID:   l.TrackingID,
		ResponseType: string(l.ResponseType),
	}
	if l.IdentifiedUserID != nil {
		id := *l.IdentifiedUserID
		m.IdentifiedUserID = &id
	}
	return m
}

func (m *auditModel) toDomain() *domain.TrapAccessLog {
	l := &domain.TrapAccessLog{
		ID:           m.ID,
		Timestamp:    m.Timestamp.UTC(),
		TrapKeyUsed:  m.TrapKeyUsed,
		TrapClass:    m.TrapClass,
		ResourceID:   m.ResourceID,
		IPAddress:    m.IPAddress,
		UserAgent:    m.UserAgent,
		Endpoint:     m.Endpoint,
		Method:       m.Method,
		TrackingID:   m.TrackingID,
		ResponseType: domain.ResponseType(m.ResponseType),
	}
	if m.IdentifiedUserID != nil {
		id := *m.IdentifiedUserID
		l.IdentifiedUserID = &id
	}
	return l
}
