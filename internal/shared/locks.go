package shared

import "fmt"

// NumberingLockKey builds redis keys serialising document numbering per scope.
func NumberingLockKey(orgID, docType, fiscalYear string) string {
	return fmt.Sprintf("numbering:%s:%s:%s:lock", orgID, docType, fiscalYear)
}
