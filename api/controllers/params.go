package controllers

import (
	"github.com/google/uuid"

	pkgerrors "github.com/taxnovahq/taxnova-backend/pkg/errors"
)

func parseBodyUUID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid id").WithDetails(map[string]any{"field": field})
	}
	return id, nil
}
