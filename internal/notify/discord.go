package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

var levelColors = map[Level]int{
	LevelInfo:     0x3498db,
	LevelSuccess:  0x2ecc71,
	LevelWarning:  0xf39c12,
	LevelError:    0xe74c3c,
	LevelCritical: 0x8e44ad,
}

var levelEmoji = map[Level]string{
	LevelInfo:     "ℹ️",
	LevelSuccess:  "✅",
	LevelWarning:  "⚠️",
	LevelError:    "❌",
	LevelCritical: "🚨",
}

var eventTitles = map[string]string{
	ProgramStart:    "로또 자동구매 시작",
	LoginStart:      "로그인 시도",
	LoginSuccess:    "로그인 성공",
	LoginFailure:    "로그인 실패",
	BalanceCheck:    "잔액 확인",
	RechargeStart:   "충전 시작",
	RechargeSuccess: "충전 완료",
	RechargeFailure: "충전 실패",
	PurchaseStart:   "구매 시작",
	PurchaseSuccess: "구매 완료",
	PurchaseFailure: "구매 실패",
	RunAborted:      "실행 중단",
	ProgramComplete: "로또 자동구매 종료",
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title     string         `json:"title"`
	Color     int            `json:"color"`
	Timestamp string         `json:"timestamp"`
	Fields    []discordField `json:"fields,omitempty"`
	Footer    struct {
		Text string `json:"text"`
	} `json:"footer"`
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

// DiscordSink posts events as webhook embeds
type DiscordSink struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSink creates a sink for webhookURL
func NewDiscordSink(webhookURL string) *DiscordSink {
	return &DiscordSink{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Name implements Sink
func (s *DiscordSink) Name() string { return "discord" }

// Send implements Sink
func (s *DiscordSink) Send(ctx context.Context, evt Event) error {
	body, err := json.Marshal(discordMessage(evt))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord webhook returned %d: %s", resp.StatusCode, msg)
	}
	return nil
}

func discordMessage(evt Event) discordPayload {
	title, ok := eventTitles[evt.Name]
	if !ok {
		title = evt.Name
	}
	color, ok := levelColors[evt.Level]
	if !ok {
		color = 0x95a5a6
	}

	embed := discordEmbed{
		Title:     fmt.Sprintf("%s %s", levelEmoji[evt.Level], title),
		Color:     color,
		Timestamp: evt.Time.Format(time.RFC3339),
	}
	embed.Footer.Text = fmt.Sprintf("lotto-agent | Level: %s", evt.Level)
	for _, k := range evt.SortedKeys() {
		embed.Fields = append(embed.Fields, discordField{
			Name:   k,
			Value:  fmt.Sprint(evt.Fields[k]),
			Inline: true,
		})
	}
	return discordPayload{Username: "lotto-agent", Embeds: []discordEmbed{embed}}
}
