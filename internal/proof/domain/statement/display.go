package statement

import "attest/internal/proof/models"

// Split partitions a group's statements into those that disclose the
// attribute value and those proven in zero knowledge. Order is preserved.
func Split(stmts []models.AtomicStatement) (revealed []models.RevealAttribute, secret []models.AtomicStatement) {
	for _, stmt := range stmts {
		if r, ok := stmt.(models.RevealAttribute); ok {
			revealed = append(revealed, r)
			continue
		}
		secret = append(secret, stmt)
	}
	return revealed, secret
}

// RevealedTags returns the attribute tags disclosed by stmts.
func RevealedTags(stmts []models.AtomicStatement) []string {
	revealed, _ := Split(stmts)
	tags := make([]string, 0, len(revealed))
	for _, r := range revealed {
		tags = append(tags, r.AttributeTag)
	}
	return tags
}
