package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var updateMany bool

var updateCmd = &cobra.Command{
	Use:   "update <collection> <json-filter> <json-update>",
	Short: "Apply a modifier document to matching documents",
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
		u, err := parseJSONDoc(args[2])
		if err != nil {
			return fmt.Errorf("parse update: %w", err)
		}

		var n int64
		if updateMany {
			n, err = coll.UpdateMany(filter, u)
		} else {
			n, err = coll.UpdateOne(filter, u)
		}
		if err != nil {
			return err
		}
		fmt.Printf("modified: %d\n", n)
		return nil
	},
}

func init() {
	updateCmd.Flags().BoolVar(&updateMany, "many", false, "Update every matching document instead of just the first")
}
