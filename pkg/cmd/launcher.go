package cmd

import (
	"errors"
	"fmt"

	"github.com/medallionhq/conductor/pkg/eventbus"
	"github.com/medallionhq/conductor/pkg/launcher"
)

var (
	ErrMissingLaunchURL = errors.New("the http launcher requires LAUNCH_URL")
	ErrMissingEventBus  = errors.New("the eventbus launcher requires EVENT_BUS_TYPE")
)

// NewLauncher creates the launcher that starts downstream executions.
func NewLauncher(kind, launchURL string, publisher eventbus.EventPublisher) (launcher.Launcher, error) {
	switch kind {
	case "", "eventbus":
		if publisher == nil {
			return nil, ErrMissingEventBus
		}

		return launcher.NewEventBusLauncher(publisher), nil
	case "http":
		if launchURL == "" {
			return nil, ErrMissingLaunchURL
		}

		return launcher.NewHTTPLauncher(launchURL, nil), nil
	default:
		return nil, fmt.Errorf("unsupported launcher: %s", kind)
	}
}
