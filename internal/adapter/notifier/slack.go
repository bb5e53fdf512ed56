package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type SlackNotifier struct {
	botToken    string
	channel     string
	mentionTeam string
	httpClient  *http.Client
}

func NewSlackNotifier(botToken, channel, mentionTeam string) *SlackNotifier {
	return &SlackNotifier{
		botToken:    botToken,
		channel:     channel,
		mentionTeam: mentionTeam,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ResponseAction describes one containment/remediation action issued through
// a vendor module.
type ResponseAction struct {
	ActionID  string // audit id
	Module    string // e.g. "defender"
	Operation string // e.g. "isolate_machine"
	Target    string // machine/alert/case id
	Comment   string
	Success   bool
	Error     string
}

// NotifyResponseAction posts a containment-action summary to the security
// channel. Callers must treat a failure here as non-fatal.
func (s *SlackNotifier) NotifyResponseAction(action ResponseAction) error {
	blocks := s.buildResponseActionBlocks(action)

	outcome := "executed"
	if !action.Success {
		outcome = "FAILED"
	}

	payload := SlackMessage{
		Channel: s.channel,
		Blocks:  blocks,
		Text:    fmt.Sprintf("🛡️ Response action %s %s on %s", action.Operation, outcome, action.Target),
	}

	return s.sendMessage(payload)
}

// Build Slack message blocks for a response action
func (s *SlackNotifier) buildResponseActionBlocks(action ResponseAction) []SlackBlock {
	header := "🛡️ Response Action Executed"
	if !action.Success {
		header = "❌ Response Action Failed"
	}

	blocks := []SlackBlock{
		{
			Type: "header",
			Text: &SlackText{
				Type: "plain_text",
				Text: header,
			},
		},
		{
			Type: "section",
			Fields: []SlackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Module*\n%s", action.Module)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Operation*\n%s", action.Operation)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Target*\n`%s`", action.Target)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Audit ID*\n%s", action.ActionID)},
			},
		},
	}

	if action.Comment != "" {
		blocks = append(blocks, SlackBlock{
			Type: "section",
			Text: &SlackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*Comment*: %s", action.Comment),
			},
		})
	}

	if !action.Success {
		blocks = append(blocks, SlackBlock{
			Type: "section",
			Text: &SlackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*Error*: %s\n\ncc: %s", action.Error, s.mentionTeam),
			},
		})
	}

	return blocks
}

// Send message to Slack
func (s *SlackNotifier) sendMessage(msg SlackMessage) error {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	req, err := http.NewRequest("POST", "https://slack.com/api/chat.postMessage", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.botToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack API returned status %d", resp.StatusCode)
	}

	return nil
}

// Slack API structures

type SlackMessage struct {
	Channel string       `json:"channel"`
	Blocks  []SlackBlock `json:"blocks"`
	Text    string       `json:"text"` // Fallback text
}

type SlackBlock struct {
	Type   string      `json:"type"`
	Text   *SlackText  `json:"text,omitempty"`
	Fields []SlackText `json:"fields,omitempty"`
}

type SlackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
