package translate

// EnumTranslator is the keyword translator with the additional
// convention that an empty side-0 value maps to the literal "NONE"
// on side 1, and vice versa.
type EnumTranslator struct{}

func (EnumTranslator) To1(v string, ctx Context) (string, error) {
	if v == "" {
		return "NONE", nil
	}
	return KeywordTranslator{}.To1(v, ctx)
}

func (EnumTranslator) To0(v string, ctx Context) (string, error) {
	if v == "NONE" {
		return "", nil
	}
	return KeywordTranslator{}.To0(v, ctx)
}
