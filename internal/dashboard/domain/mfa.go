package domain

// MFAEnrollment is what a freshly registered user needs to set up their
// authenticator app.
type MFAEnrollment struct {
	Secret  string // Base32 encoded secret for TOTP
	URL     string // otpauth:// provisioning URI
	QRCode  []byte // PNG rendering of URL
	Issuer  string
	Account string
}
