package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var replaceCmd = &cobra.Command{
	Use:   "replace <collection> <json-filter> <json-document>",
	Short: "Replace the first document matching a filter",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHandle()
		if err != nil {
			return err
		}
		defer h.Close()

		coll, err := h.Collection(args[0])
		if err != nil {
			return err
		}
		filter, err := parseJSONDoc(args[1])
		if err != nil {
			return fmt.Errorf("parse filter: %w", err)
		}
		replacement, err := parseJSONDoc(args[2])
		if err != nil {
			return fmt.Errorf("parse replacement: %w", err)
		}
		n, err := coll.ReplaceOne(filter, replacement)
		if err != nil {
			return err
		}
		fmt.Printf("replaced: %d\n", n)
		return nil
	},
}
