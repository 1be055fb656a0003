package models

// Identity attribute tags an identity provider may attest.
const (
	TagFirstName          = "firstName"
	TagLastName           = "lastName"
	TagSex                = "sex"
	TagDateOfBirth        = "dob"
	TagCountryOfResidence = "countryOfResidence"
	TagNationality        = "nationality"
	TagIDDocType          = "idDocType"
	TagIDDocNo            = "idDocNo"
	TagIDDocIssuer        = "idDocIssuer"
	TagIDDocIssuedAt      = "idDocIssuedAt"
	TagIDDocExpiresAt     = "idDocExpiresAt"
	TagNationalIDNo       = "nationalIdNo"
	TagTaxIDNo            = "taxIdNo"
	TagLEI                = "lei"
	TagLegalName          = "legalName"
	TagLegalCountry       = "legalCountry"
	TagBusinessNumber     = "businessNumber"
	TagRegistrationAuth   = "registrationAuth"
)

var identityTags = map[string]struct{}{
	TagFirstName: {}, TagLastName: {}, TagSex: {}, TagDateOfBirth: {},
	TagCountryOfResidence: {}, TagNationality: {}, TagIDDocType: {}, TagIDDocNo: {},
	TagIDDocIssuer: {}, TagIDDocIssuedAt: {}, TagIDDocExpiresAt: {}, TagNationalIDNo: {},
	TagTaxIDNo: {}, TagLEI: {}, TagLegalName: {}, TagLegalCountry: {},
	TagBusinessNumber: {}, TagRegistrationAuth: {},
}

// IsIdentityTag reports whether tag is an identity attribute tag.
func IsIdentityTag(tag string) bool {
	_, ok := identityTags[tag]
	return ok
}
