package handlers

import "github.com/google/uuid"

func parseBatchUUID(s string) ([]byte, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return id.MarshalBinary()
}
