package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
)

var countCmd = &cobra.Command{
	Use:   "count <collection> [json-filter]",
	Short: "Count documents, optionally matching a filter",
	Args:  cobra.RangeArgs(1, 2),
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
		var filter bson.Raw
		if len(args) == 2 {
			filter, err = parseJSONDoc(args[1])
			if err != nil {
				return fmt.Errorf("parse filter: %w", err)
			}
		}
		n, err := coll.Count(filter)
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	},
}
