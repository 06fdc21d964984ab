package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/johndauphine/rowmigrate/internal/config"
)

const (
	appName = "rowmigrate"

	colorOK      = "#36a64f"
	colorWarning = "#ffc107"
	colorFailed  = "#dc3545"

	maxErrorLen = 500
	maxNames    = 5
)

// Notifier posts run events to a Slack incoming webhook.
type Notifier struct {
	config *config.SlackConfig
	client *http.Client
}

// SlackMessage is the incoming-webhook payload.
type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

type SlackAttachment struct {
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title,omitempty"`
	Text      string       `json:"text,omitempty"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func short(title, value string) SlackField { return SlackField{Title: title, Value: value, Short: true} }
func long(title, value string) SlackField  { return SlackField{Title: title, Value: value} }

// New returns a notifier for cfg. A nil cfg gives a disabled notifier.
func New(cfg *config.SlackConfig) *Notifier {
	if cfg == nil {
		cfg = &config.SlackConfig{}
	}
	return &Notifier{config: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

// IsEnabled reports whether slack.enabled is set and a webhook is configured.
func (n *Notifier) IsEnabled() bool {
	return n.config.Enabled && n.config.WebhookURL != ""
}

func (n *Notifier) RunStarted(runID, source, target string, migrations int) error {
	return n.post(":rocket:", "", SlackAttachment{
		Color: colorOK,
		Title: "Migration Run Started",
		Fields: []SlackField{
			short("Run ID", runID),
			short("Migrations", strconv.Itoa(migrations)),
			short("Source", source),
			short("Target", target),
		},
	})
}

func (n *Notifier) RunCompleted(s RunSummary) error {
	rate := formatNumberWithCommas(int64(s.Throughput))
	text := fmt.Sprintf("All migrations completed. Inserted %s rows across %d migrations. Throughput: %s rows/sec.",
		formatNumberWithCommas(s.Inserted), s.Migrations, rate)

	fields := append(s.header(),
		short("Migrations", strconv.Itoa(s.Migrations)),
		short("Inserted", formatNumberWithCommas(s.Inserted)),
		short("Throughput", rate+" rows/sec"),
	)
	return n.post(":white_check_mark:", text, SlackAttachment{Color: colorOK, Fields: fields})
}

// RunCompletedWithErrors covers runs with failed rows or abandoned migrations.
func (n *Notifier) RunCompletedWithErrors(s RunSummary) error {
	text := fmt.Sprintf("Migrations completed with errors. Inserted %s rows, %s rows failed.",
		formatNumberWithCommas(s.Inserted), formatNumberWithCommas(s.Errors))

	fields := append(s.header(),
		short("Inserted", formatNumberWithCommas(s.Inserted)),
		short("Failed Rows", formatNumberWithCommas(s.Errors)),
		long("Errors by Kind", s.ErrorSummary),
	)
	if len(s.Abandoned) > 0 {
		fields = append(fields, long("Abandoned Migrations", summarizeNames(s.Abandoned)))
	}
	return n.post(":warning:", text, SlackAttachment{Color: colorWarning, Fields: fields})
}

func (n *Notifier) RunFailed(runID string, err error, duration time.Duration) error {
	return n.post(":x:", "", SlackAttachment{
		Color: colorFailed,
		Title: "Migration Run Failed",
		Fields: []SlackField{
			short("Run ID", runID),
			short("Duration", duration.Round(time.Second).String()),
			long("Error", truncateError(err)),
		},
	})
}

func (n *Notifier) MigrationAbandoned(runID, migration string, err error) error {
	return n.post(":warning:", "", SlackAttachment{
		Color: colorWarning,
		Title: "Migration Abandoned",
		Fields: []SlackField{
			short("Run ID", runID),
			short("Migration", migration),
			long("Error", truncateError(err)),
		},
	})
}

func (s RunSummary) header() []SlackField {
	return []SlackField{
		short("Run ID", s.RunID),
		short("Started", s.StartTime.UTC().Format("2006-01-02 15:04:05 UTC")),
		short("Duration", formatDuration(s.Duration)),
	}
}

// post wraps att in a message and sends it. It is a no-op when disabled.
func (n *Notifier) post(icon, text string, att SlackAttachment) error {
	if !n.IsEnabled() {
		return nil
	}

	att.Footer = appName
	att.Timestamp = time.Now().Unix()
	username := n.config.Username
	if username == "" {
		username = appName
	}

	payload, err := json.Marshal(SlackMessage{
		Channel:     n.config.Channel,
		Username:    username,
		IconEmoji:   icon,
		Text:        text,
		Attachments: []SlackAttachment{att},
	})
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	resp, err := n.client.Post(n.config.WebhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sending to Slack: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Slack returned status %d", resp.StatusCode)
	}
	return nil
}

func truncateError(err error) string {
	if err == nil {
		return "Unknown error"
	}
	msg := err.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen] + "..."
	}
	return msg
}

// summarizeNames lists up to maxNames names, or the first three and a count.
func summarizeNames(names []string) string {
	if len(names) <= maxNames {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s... and %d more", strings.Join(names[:3], ", "), len(names)-3)
}

func formatNumberWithCommas(n int64) string {
	if n < 0 {
		return "-" + formatNumberWithCommas(-n)
	}
	digits := strconv.FormatInt(n, 10)
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	parts := []string{digits[:lead]}
	for i := lead; i < len(digits); i += 3 {
		parts = append(parts, digits[i:i+3])
	}
	return strings.Join(parts, ",")
}

// formatDuration renders d rounded to seconds as "1h 2m 3s", dropping
// leading zero units.
func formatDuration(d time.Duration) string {
	total := int64(d.Round(time.Second) / time.Second)
	h, m, s := total/3600, total/60%60, total%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
