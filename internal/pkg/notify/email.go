package notify

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"founderhunter/internal/config"
	"founderhunter/internal/model"

	"gopkg.in/gomail.v2"
)

// EmailNotifier 在一次运行结束后发送总结邮件。
//
// SMTP 配置或收件人缺失时静默跳过，不影响主流程。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
}

// NewEmailNotifier 创建邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
}

// SendRunSummary 发送运行总结。
func (n *EmailNotifier) SendRunSummary(toEmail string, snap model.ProgressSnapshot, failed []model.FailedURL, exportPath string, duration time.Duration) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		n.logger.Warn("email config missing, skip run summary")
		return nil
	}
	if strings.TrimSpace(toEmail) == "" {
		n.logger.Debug("no summary recipient configured, skip")
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", fmt.Sprintf("[FounderHunter] Run finished: %d records", snap.Completed))
	m.SetBody("text/html", n.buildHTMLBody(snap, failed, exportPath, duration))

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("run summary email sent", slog.String("to", toEmail))
	return nil
}

func (n *EmailNotifier) buildHTMLBody(snap model.ProgressSnapshot, failed []model.FailedURL, exportPath string, duration time.Duration) string {
	var failedRows strings.Builder
	for i, fu := range failed {
		if i >= 20 {
			failedRows.WriteString(fmt.Sprintf("<tr><td colspan=\"3\">... and %d more</td></tr>", len(failed)-i))
			break
		}
		failedRows.WriteString(fmt.Sprintf("<tr><td>%s</td><td>%s</td><td>%d</td></tr>", fu.URL, fu.Kind, fu.Attempts))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <div style="max-width: 640px; margin: 0 auto; padding: 16px;">
    <h2>FounderHunter run summary</h2>
    <table cellpadding="6" style="border-collapse: collapse;">
      <tr><td><b>Discovered</b></td><td>%d</td></tr>
      <tr><td><b>Completed</b></td><td>%d</td></tr>
      <tr><td><b>Failed</b></td><td>%d</td></tr>
      <tr><td><b>Retries</b></td><td>%d</td></tr>
      <tr><td><b>Duration</b></td><td>%s</td></tr>
      <tr><td><b>Export</b></td><td>%s</td></tr>
    </table>
    <h3>Failed URLs</h3>
    <table cellpadding="6" border="1" style="border-collapse: collapse; font-size: 13px;">
      <tr><th>URL</th><th>Kind</th><th>Attempts</th></tr>
      %s
    </table>
  </div>
</body>
</html>`,
		snap.Discovered, snap.Completed, snap.Failed, snap.Retries,
		duration.Round(time.Second).String(), exportPath, failedRows.String())
}
