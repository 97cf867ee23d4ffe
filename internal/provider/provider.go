// Package provider 提供常见邮件服务商的 IMAP/SMTP 预设，用于 setup 时预填主机与端口。
package provider

import "github.com/tume-mail/tume/internal/credential"

// Security 是连接加密方式。
type Security string

const (
	// SecurityTLS 为隐式 TLS。
	SecurityTLS Security = "tls"
	// SecurityStartTLS 为明文连接后升级。
	SecurityStartTLS Security = "starttls"
)

// Provider 是一个服务商预设。
type Provider struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Description  string   `json:"description" yaml:"description"`
	IMAPHost     string   `json:"imap_host" yaml:"imap_host"`
	IMAPPort     uint16   `json:"imap_port" yaml:"imap_port"`
	IMAPSecurity Security `json:"imap_security" yaml:"imap_security"`
	SMTPHost     string   `json:"smtp_host" yaml:"smtp_host"`
	SMTPPort     uint16   `json:"smtp_port" yaml:"smtp_port"`
	SMTPSecurity Security `json:"smtp_security" yaml:"smtp_security"`
	UsernameHint string   `json:"username_hint" yaml:"username_hint"`
}

// Custom 是手动填写服务器的预设 ID。
const Custom = "custom"

// 多数服务商是 993/TLS + 587/STARTTLS
func standard(id, name, desc, imapHost, smtpHost, hint string) Provider {
	return Provider{
		ID: id, Name: name, Description: desc,
		IMAPHost: imapHost, IMAPPort: 993, IMAPSecurity: SecurityTLS,
		SMTPHost: smtpHost, SMTPPort: 587, SMTPSecurity: SecurityStartTLS,
		UsernameHint: hint,
	}
}

var presets = []Provider{
	standard("gmail", "Gmail", "Google Gmail - Requires app-specific password if 2FA is enabled",
		"imap.gmail.com", "smtp.gmail.com", "your.email@gmail.com"),
	standard("outlook", "Outlook / Office 365", "Microsoft Outlook.com, Hotmail, Live, and Office 365 accounts",
		"outlook.office365.com", "smtp.office365.com", "your.email@outlook.com"),
	standard("yahoo", "Yahoo Mail", "Yahoo Mail - Requires app-specific password",
		"imap.mail.yahoo.com", "smtp.mail.yahoo.com", "your.email@yahoo.com"),
	{
		ID: "protonmail", Name: "ProtonMail Bridge", Description: "ProtonMail - Requires ProtonMail Bridge running locally",
		IMAPHost: "127.0.0.1", IMAPPort: 1143, IMAPSecurity: SecurityStartTLS,
		SMTPHost: "127.0.0.1", SMTPPort: 1025, SMTPSecurity: SecurityStartTLS,
		UsernameHint: "your.email@proton.me",
	},
	standard("icloud", "iCloud Mail", "Apple iCloud Mail - Requires app-specific password",
		"imap.mail.me.com", "smtp.mail.me.com", "your.email@icloud.com"),
	standard("fastmail", "Fastmail", "Fastmail - Privacy-focused email service",
		"imap.fastmail.com", "smtp.fastmail.com", "your.email@fastmail.com"),
	standard("aol", "AOL Mail", "AOL Mail - Requires app-specific password",
		"imap.aol.com", "smtp.aol.com", "your.email@aol.com"),
	standard("zoho", "Zoho Mail", "Zoho Mail - Business and personal email",
		"imap.zoho.com", "smtp.zoho.com", "your.email@zoho.com"),
	standard("gmx", "GMX Mail", "GMX Mail - Free email service",
		"imap.gmx.com", "smtp.gmx.com", "your.email@gmx.com"),
	standard("mailcom", "Mail.com", "Mail.com - Free email with many domain options",
		"imap.mail.com", "smtp.mail.com", "your.email@mail.com"),
	standard("yandex", "Yandex Mail", "Yandex Mail - Russian email service",
		"imap.yandex.com", "smtp.yandex.com", "your.email@yandex.com"),
	standard(Custom, "Custom (Other Provider)", "Manually configure IMAP and SMTP settings",
		"", "", "your.email@domain.com"),
}

// All 返回全部预设的副本，Custom 总在最后。
func All() []Provider {
	out := make([]Provider, len(presets))
	copy(out, presets)
	return out
}

// ByID 按 ID 查找预设。
func ByID(id string) (Provider, bool) {
	for _, p := range presets {
		if p.ID == id {
			return p, true
		}
	}
	return Provider{}, false
}

// IDs 返回全部预设 ID，用于参数校验与补全。
func IDs() []string {
	ids := make([]string, len(presets))
	for i, p := range presets {
		ids[i] = p.ID
	}
	return ids
}

// Apply 用预设填充 b 中尚未设置的主机与端口；已有值不会被覆盖。
func (p Provider) Apply(b *credential.Bundle) {
	if b == nil {
		return
	}
	if len(b.IMAPHost) == 0 && p.IMAPHost != "" {
		b.IMAPHost = []byte(p.IMAPHost)
	}
	if b.IMAPPort == 0 {
		b.IMAPPort = p.IMAPPort
	}
	if len(b.SMTPHost) == 0 && p.SMTPHost != "" {
		b.SMTPHost = []byte(p.SMTPHost)
	}
	if b.SMTPPort == 0 {
		b.SMTPPort = p.SMTPPort
	}
}
