package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteMany bool

var deleteCmd = &cobra.Command{
	Use:   "delete <collection> <json-filter>",
	Short: "Delete documents matching a filter",
	Args:  cobra.ExactArgs(2),
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

		var n int64
		if deleteMany {
			n, err = coll.DeleteMany(filter)
		} else {
			n, err = coll.DeleteOne(filter)
		}
		if err != nil {
			return err
		}
		fmt.Printf("deleted: %d\n", n)
		return nil
	},
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteMany, "many", false, "Delete every matching document instead of just the first")
}
