package chat

// PushOption controls push notification delivery for one message.
type PushOption int

const (
	PushOptionDefault PushOption = iota
	PushOptionSuppress
)

// FileInfo describes the payload of a file message. The binary itself
// lives behind the URL; the core never touches file contents.
type FileInfo struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
	Type string `json:"file_type,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// Message is the closed message variant: user, file, or admin, selected
// by Type. Admin messages have no sender. A message sent by the local
// user starts with a request ID only; MessageID stays zero until the
// server acknowledges it.
type Message struct {
	Type             MessageType         `json:"type"`
	MessageID        int64               `json:"message_id,omitempty"`
	RequestID        string              `json:"req_id,omitempty"`
	ChannelURL       string              `json:"channel_url"`
	ChannelType      ChannelType         `json:"channel_type"`
	Sender           *User               `json:"user,omitempty"`
	Message          string              `json:"message,omitempty"`
	Data             string              `json:"data,omitempty"`
	CustomType       string              `json:"custom_type,omitempty"`
	CreatedAt        int64               `json:"created_at"`
	UpdatedAt        int64               `json:"updated_at,omitempty"`
	MentionType      MentionType         `json:"mention_type,omitempty"`
	MentionedUserIDs []string            `json:"mentioned_user_ids,omitempty"`
	MetaArrays       map[string][]string `json:"meta_arrays,omitempty"`
	File             *FileInfo           `json:"file,omitempty"`

	// Send-side options echoed on the outgoing frame. The server
	// translates messages into TargetLanguages, filters the returned
	// meta arrays to MetaArrayKeys, and honors PushOption for
	// notification delivery.
	TargetLanguages []string   `json:"target_langs,omitempty"`
	MetaArrayKeys   []string   `json:"metaarray_keys,omitempty"`
	PushOption      PushOption `json:"push_option,omitempty"`
}

// DisplayTimestamp is the timestamp ordering should use: UpdatedAt when
// set, CreatedAt otherwise.
func (m *Message) DisplayTimestamp() int64 {
	if m.UpdatedAt != 0 {
		return m.UpdatedAt
	}
	return m.CreatedAt
}

// overwrite copies every field of src into m, preserving m's identity
// so existing references observe the update. A zero MessageID or empty
// RequestID in src never erases one m already has.
func (m *Message) overwrite(src *Message) {
	id, reqID := m.MessageID, m.RequestID
	*m = *src
	if m.MessageID == 0 {
		m.MessageID = id
	}
	if m.RequestID == "" {
		m.RequestID = reqID
	}
}

// UserMessageParams collects the inputs of SendUserMessage.
type UserMessageParams struct {
	message          string
	data             string
	customType       string
	targetLanguages  []string
	mentionType      MentionType
	mentionedUserIDs []string
	metaArrayKeys    []string
	pushOption       PushOption
}

// NewUserMessageParams starts a params builder for the given text.
func NewUserMessageParams(message string) *UserMessageParams {
	return &UserMessageParams{message: message}
}

func (p *UserMessageParams) SetData(data string) *UserMessageParams {
	p.data = data
	return p
}

func (p *UserMessageParams) SetCustomType(customType string) *UserMessageParams {
	p.customType = customType
	return p
}

func (p *UserMessageParams) SetTargetLanguages(langs []string) *UserMessageParams {
	p.targetLanguages = langs
	return p
}

func (p *UserMessageParams) SetMentionType(t MentionType) *UserMessageParams {
	p.mentionType = t
	return p
}

func (p *UserMessageParams) SetMentionedUserIDs(ids []string) *UserMessageParams {
	p.mentionedUserIDs = ids
	return p
}

func (p *UserMessageParams) SetMetaArrayKeys(keys []string) *UserMessageParams {
	p.metaArrayKeys = keys
	return p
}

func (p *UserMessageParams) SetPushOption(opt PushOption) *UserMessageParams {
	p.pushOption = opt
	return p
}

// FileMessageParams collects the inputs of SendFileMessage. The file is
// referenced by URL; uploading binaries is outside the core.
type FileMessageParams struct {
	fileURL    string
	fileName   string
	fileType   string
	fileSize   int64
	data       string
	customType string
}

// NewFileMessageParams starts a params builder for an uploaded file URL.
func NewFileMessageParams(fileURL string) *FileMessageParams {
	return &FileMessageParams{fileURL: fileURL}
}

func (p *FileMessageParams) SetFileName(name string) *FileMessageParams {
	p.fileName = name
	return p
}

func (p *FileMessageParams) SetFileType(fileType string) *FileMessageParams {
	p.fileType = fileType
	return p
}

func (p *FileMessageParams) SetFileSize(size int64) *FileMessageParams {
	p.fileSize = size
	return p
}

func (p *FileMessageParams) SetData(data string) *FileMessageParams {
	p.data = data
	return p
}

func (p *FileMessageParams) SetCustomType(customType string) *FileMessageParams {
	p.customType = customType
	return p
}
