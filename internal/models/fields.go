package models

// Collection names in the counter store.
const (
	CollectionAccounts    = "accounts"
	CollectionBoards      = "boards"
	CollectionCredentials = "credentials"
)

// Document keys shared by every store implementation.
const (
	FieldID = "id"

	FieldOwnerID        = "ownerId"
	FieldTitle          = "title"
	FieldTotalSlots     = "totalSlots"
	FieldCurrentCount   = "currentCount"
	FieldRewardImageRef = "rewardImageRef"
	FieldLifecycleState = "lifecycleState"
	FieldCompletedAt    = "completedAt"
	FieldCreatedAt      = "createdAt"

	FieldEmail       = "email"
	FieldParentPin   = "parentPin"
	FieldIsAnonymous = "isAnonymous"

	FieldPasswordHash = "passwordHash"
)

// DefaultRewardImage is used when a board is created without an image.
const DefaultRewardImage = "/party.png"
