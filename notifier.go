package pgbenchmark

import (
	"fmt"

	"pgbenchmark/notifier/slack"
)

// BuildNotifiers constructs the notifiers named in the config.
func (c Config) BuildNotifiers() ([]Notifier, error) {
	var notifiers []Notifier
	for _, nc := range c.Notifiers {
		n, err := notifierDecode(nc)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}
	return notifiers, nil
}

func notifierDecode(nc NotifierConfig) (Notifier, error) {
	switch nc.Type {
	case slack.Type:
		return slack.Notifier{
			Name:     nc.Name,
			Username: nc.Username,
			Channel:  nc.Channel,
			Webhook:  nc.Webhook,
		}, nil
	default:
		return nil, fmt.Errorf("unknown notifier type: %s", nc.Type)
	}
}
