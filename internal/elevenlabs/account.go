package elevenlabs

import "context"

// Subscription reports quota and plan status for the configured API key.
type Subscription struct {
	Tier                string `json:"tier"`
	CharacterCount      int64  `json:"character_count"`
	CharacterLimit      int64  `json:"character_limit"`
	VoiceSlotsUsed      int    `json:"voice_slots_used,omitempty"`
	VoiceLimit          int    `json:"voice_limit,omitempty"`
	Status              string `json:"status"`
	NextResetUnix       int64  `json:"next_character_count_reset_unix,omitempty"`
	CanExtendLimit      bool   `json:"can_extend_character_limit,omitempty"`
	ProfessionalVoices  int    `json:"professional_voice_limit,omitempty"`
	InstantVoiceCloning bool   `json:"can_use_instant_voice_cloning,omitempty"`
}

// GetSubscription fetches the current subscription state.
func (c *Client) GetSubscription(ctx context.Context) (*Subscription, error) {
	var sub Subscription
	if err := c.getJSON(ctx, "/v1/user/subscription", nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// User describes the account behind the configured API key.
type User struct {
	UserID       string        `json:"user_id"`
	FirstName    string        `json:"first_name,omitempty"`
	IsOnboarded  bool          `json:"is_onboarding_completed,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// GetUser fetches account metadata.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	var u User
	if err := c.getJSON(ctx, "/v1/user", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
