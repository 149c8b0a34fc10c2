package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dogmatiq/sqlqueue/message"
	"github.com/spf13/cobra"
)

func newPushCommand(e *env) *cobra.Command {
	var opts struct {
		delay       time.Duration
		ackTimeout  time.Duration
		maxAttempts int
		ensure      bool
	}

	cmd := &cobra.Command{
		Use:   "push <kind> <payload>",
		Short: "Push a message with a JSON payload onto a queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := []byte(args[1])
			if !json.Valid(payload) {
				return errors.New("payload must be valid JSON")
			}

			m, err := message.New(args[0], json.RawMessage(payload))
			if err != nil {
				return err
			}

			if opts.maxAttempts > 0 {
				m = m.WithMaxAttempts(opts.maxAttempts)
			}

			if opts.ackTimeout > 0 {
				m = m.WithAckTimeout(opts.ackTimeout)
			}

			q, err := e.defaultQueue(cmd.Context())
			if err != nil {
				return err
			}

			fp, err := message.Fingerprint(m)
			if err != nil {
				return err
			}

			if opts.ensure {
				pushed, err := q.Ensure(cmd.Context(), m, opts.delay)
				if err != nil {
					return err
				}

				if !pushed {
					fmt.Fprintf(cmd.OutOrStdout(), "%s already queued\n", fp)
					return nil
				}
			} else if err := q.Push(cmd.Context(), m, opts.delay); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s pushed\n", fp)
			return nil
		},
	}

	cmd.Flags().DurationVar(&opts.delay, "delay", 0, "the duration to wait before the message becomes deliverable")
	cmd.Flags().DurationVar(&opts.ackTimeout, "message-ack-timeout", 0, "override the queue's ack timeout for this message")
	cmd.Flags().IntVar(&opts.maxAttempts, "max-attempts", 0, "the number of deliveries after which the message is dead-lettered")
	cmd.Flags().BoolVar(&opts.ensure, "ensure", false, "only push the message if it is not already queued or in flight")

	return cmd
}
