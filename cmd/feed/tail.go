package main

import (
	"errors"
	"io"

	"github.com/spf13/cobra"
	yerrors "github.com/yanun0323/errors"

	"marketfeed/internal/stream"
)

func newTailCmd() *cobra.Command {
	var topics []string
	cmd := &cobra.Command{
		Use:   "tail SOCKET",
		Short: "Print events streamed by a running feed until it closes the socket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keep, err := topicFilter(topics)
			if err != nil {
				return err
			}
			conn, err := stream.Dial(cmd.Context(), args[0])
			if err != nil {
				return yerrors.Wrap(err, "dial stream").With("socket", args[0])
			}
			defer conn.Close()

			p := &printer{w: cmd.OutOrStdout()}
			for {
				ev, err := conn.Next()
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return yerrors.Wrap(err, "read stream").With("socket", args[0])
				}
				if len(keep) > 0 {
					if _, ok := keep[ev.Topic]; !ok {
						continue
					}
				}
				if err := p.write(ev); err != nil {
					return err
				}
			}
		},
	}
	cmd.Flags().StringSliceVar(&topics, "topic", nil, "print only these topics")
	return cmd
}
