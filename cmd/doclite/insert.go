package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var insertCmd = &cobra.Command{
	Use:   "insert <collection> <json-document>",
	Short: "Insert a document into a collection",
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
		doc, err := parseJSONDoc(args[1])
		if err != nil {
			return fmt.Errorf("parse document: %w", err)
		}
		id, err := coll.InsertOne(doc)
		if err != nil {
			return err
		}
		fmt.Println(id.Hex())
		return nil
	},
}
