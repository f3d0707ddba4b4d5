package main

import "github.com/google/uuid"

func mustNodeUUID(s string) uuid.UUID {
	return uuid.MustParse(s)
}
