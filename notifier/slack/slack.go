// Package slack posts a finished benchmark's summary to a Slack
// incoming webhook.
package slack

import (
	"encoding/json"
	"strconv"

	slack "github.com/ashwanthkumar/slack-go-webhook"

	"pgbenchmark/types"
)

// Type should match the package name
const Type = "slack"

// Notifier consist of all the sub components required to use Slack API
type Notifier struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Channel  string `json:"channel"`
	Webhook  string `json:"webhook"`
}

// New creates a new Notifier instance based on json config
func New(config json.RawMessage) (Notifier, error) {
	var notifier Notifier
	err := json.Unmarshal(config, &notifier)
	return notifier, err
}

// Type returns the notifier package name
func (Notifier) Type() string {
	return Type
}

// Notify posts the summary stats to the configured webhook.
func (s Notifier) Notify(stats types.Stats) error {
	attach := slack.Attachment{}
	attach.AddField(slack.Field{Title: "Runs", Value: strconv.Itoa(stats.Runs)})
	attach.AddField(slack.Field{Title: "Min", Value: types.FormatSeconds(stats.MinTime) + "s"})
	attach.AddField(slack.Field{Title: "Max", Value: types.FormatSeconds(stats.MaxTime) + "s"})
	attach.AddField(slack.Field{Title: "Avg", Value: types.FormatSeconds(stats.AvgTime) + "s"})
	attach.AddField(slack.Field{Title: "Median", Value: types.FormatSeconds(stats.MedianTime) + "s"})
	attach.AddField(slack.Field{Title: "P95", Value: types.FormatSeconds(stats.P95Time) + "s"})

	title := s.Name
	if title == "" {
		title = "Benchmark complete"
	}
	payload := slack.Payload{
		Text:        title,
		Username:    s.Username,
		Channel:     s.Channel,
		Attachments: []slack.Attachment{attach},
	}

	if errs := slack.Send(s.Webhook, "", payload); len(errs) > 0 {
		return types.Errors(errs)
	}
	return nil
}
