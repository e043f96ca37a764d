package db

// Setting keys stored in system_settings
const (
	// SettingRefreshInterval is the poll interval in whole minutes
	SettingRefreshInterval = "refresh_interval"

	// SettingTimezone is an IANA timezone identifier
	SettingTimezone = "timezone"

	SettingAteraAPIKey = "atera_api_key"

	SettingTwilioAccountSID  = "twilio_account_sid"
	SettingTwilioAuthToken   = "twilio_auth_token"
	SettingTwilioPhoneNumber = "twilio_phone_number"

	// SettingLastTicketCheck is written at the start of every ingestion cycle
	SettingLastTicketCheck = "last_ticket_check"
)

// IsSecretSetting reports whether a setting value must be masked when shown
func IsSecretSetting(key string) bool {
	switch key {
	case SettingAteraAPIKey, SettingTwilioAccountSID, SettingTwilioAuthToken:
		return true
	default:
		return false
	}
}

// KnownSettings lists every key the notifier reads
func KnownSettings() []string {
	return []string{
		SettingRefreshInterval,
		SettingTimezone,
		SettingAteraAPIKey,
		SettingTwilioAccountSID,
		SettingTwilioAuthToken,
		SettingTwilioPhoneNumber,
		SettingLastTicketCheck,
	}
}
