package course

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
)

var (
	reactionKindTag  = "reactionkind"
	reactionKindText = "must be one of: like, love, insightful, confused"
)

// InitValidators registers the course validators & translations on validate.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(reactionKindTag, reactionKindValidation)
	core.RegisterCustomTranslation(validate, translator, reactionKindTag, reactionKindText)
}

func reactionKindValidation(fl validator.FieldLevel) bool {
	return IsValidReactionKind(fl.Field().String())
}

func IsValidReactionKind(kind string) bool {
	for _, k := range ReactionKinds {
		if k == kind {
			return true
		}
	}
	return false
}
