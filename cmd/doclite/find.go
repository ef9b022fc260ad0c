package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
)

var findCmd = &cobra.Command{
	Use:   "find <collection> [json-filter]",
	Short: "Find documents matching a filter (all documents if filter omitted)",
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
		cur, err := coll.Find(filter)
		if err != nil {
			return err
		}
		defer cur.Close()

		for {
			doc, ok := cur.Next()
			if !ok {
				break
			}
			s, err := renderJSONDoc(doc)
			if err != nil {
				return err
			}
			fmt.Println(s)
		}
		return nil
	},
}
