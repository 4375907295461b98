package airdrop

// DiscoverRequest is the plist body of POST /Discover (spec §4.7).
type DiscoverRequest struct {
	SenderRecordData []byte `plist:"SenderRecordData,omitempty"`
}

// DiscoverResponse is the plist body returned by /Discover.
type DiscoverResponse struct {
	ReceiverComputerName     string `plist:"ReceiverComputerName"`
	ReceiverModelName        string `plist:"ReceiverModelName"`
	ReceiverMediaCapabilities []byte `plist:"ReceiverMediaCapabilities,omitempty"`
}

// AskFileMetadata is one entry in an AskRequest's file list.
type AskFileMetadata struct {
	Name                string `plist:"FileName"`
	Type                string `plist:"FileType"`
	IsDirectory         bool   `plist:"FileIsDirectory"`
	ConvertMediaFormats bool   `plist:"ConvertMediaFormats"`
	BomPath             string `plist:"FileBomPath,omitempty"`
}

// AskRequest is the plist body of POST /Ask.
type AskRequest struct {
	SenderComputerName string            `plist:"SenderComputerName"`
	SenderModelName    string            `plist:"SenderModelName"`
	SenderID           string            `plist:"SenderID"`
	BundleID           string            `plist:"BundleID,omitempty"`
	PreviewIcon        []byte            `plist:"FileIcon,omitempty"`
	Files              []AskFileMetadata `plist:"Files"`
	SenderRecordData   []byte            `plist:"SenderRecordData,omitempty"`
}

// AskResponse is the plist body returned by /Ask on acceptance.
type AskResponse struct {
	ReceiverComputerName string `plist:"ReceiverComputerName"`
	ReceiverModelName    string `plist:"ReceiverModelName"`
}
