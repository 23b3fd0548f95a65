package enums

// TransactionStatus represents the lifecycle state of a payment claim.
type TransactionStatus string

const (
	// TransactionStatusPending means the claim awaits admin review.
	TransactionStatusPending TransactionStatus = "pending"
	// TransactionStatusApproved means the admin verified the payment and access was released.
	TransactionStatusApproved TransactionStatus = "approved"
	// TransactionStatusRejected means the admin rejected the payment claim.
	TransactionStatusRejected TransactionStatus = "rejected"
)
