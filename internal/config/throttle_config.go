package config

import "time"

type ThrottleConfig interface {
	GetMagicLinkEmailMax() int
	GetMagicLinkEmailWindow() time.Duration
	GetMagicLinkEmailCooldown() time.Duration
	GetMagicLinkSourceMax() int
	GetMagicLinkSourceWindow() time.Duration
	GetMagicLinkSourceCooldown() time.Duration
	GetStaffLoginMax() int
	GetStaffLoginWindow() time.Duration
	GetStaffLoginCooldown() time.Duration
}

type Throttle struct{}

var _ ThrottleConfig = Throttle{}

func (Throttle) GetMagicLinkEmailMax() int {
	return GetEnvInt("MAGIC_LINK_EMAIL_MAX", 3)
}

func (t Throttle) GetMagicLinkEmailWindow() time.Duration {
	return GetEnvDuration("MAGIC_LINK_EMAIL_WINDOW", 15*time.Minute)
}

func (t Throttle) GetMagicLinkEmailCooldown() time.Duration {
	return GetEnvDuration("MAGIC_LINK_EMAIL_COOLDOWN", t.GetMagicLinkEmailWindow())
}

func (Throttle) GetMagicLinkSourceMax() int {
	return GetEnvInt("MAGIC_LINK_SOURCE_MAX", 10)
}

func (Throttle) GetMagicLinkSourceWindow() time.Duration {
	return GetEnvDuration("MAGIC_LINK_SOURCE_WINDOW", 60*time.Minute)
}

func (t Throttle) GetMagicLinkSourceCooldown() time.Duration {
	return GetEnvDuration("MAGIC_LINK_SOURCE_COOLDOWN", t.GetMagicLinkSourceWindow())
}

func (Throttle) GetStaffLoginMax() int {
	return GetEnvInt("STAFF_LOGIN_MAX", 5)
}

func (Throttle) GetStaffLoginWindow() time.Duration {
	return GetEnvDuration("STAFF_LOGIN_WINDOW", 15*time.Minute)
}

func (t Throttle) GetStaffLoginCooldown() time.Duration {
	return GetEnvDuration("STAFF_LOGIN_COOLDOWN", t.GetStaffLoginWindow())
}
