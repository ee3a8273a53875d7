package sqldb

// Table and field names shared by all SQL backends. The DDL lives with each
// backend since the dialects differ; the query ops only ever reference these
// constants.

const AccountsTableName = "accounts"
const AccountsFieldID = "id"
const AccountsFieldCredentialsRef = "credentials_ref"
const AccountsFieldStatus = "status"
const AccountsFieldLastSyncedAt = "last_synced_at"
const AccountsFieldLogSeq = "log_seq"

const FoldersTableName = "folders"
const FoldersFieldID = "id"
const FoldersFieldAccountID = "account_id"
const FoldersFieldRemoteID = "remote_id"
const FoldersFieldName = "name"
const FoldersFieldStatus = "status"
const FoldersFieldCursor = "cursor"
const FoldersFieldPageToken = "page_token"
const FoldersFieldDisabled = "disabled"

const MessagesTableName = "messages"
const MessagesFieldID = "id"
const MessagesFieldFolderID = "folder_id"
const MessagesFieldRemoteID = "remote_id"
const MessagesFieldObjectType = "object_type"
const MessagesFieldHash = "hash"
const MessagesFieldRevision = "revision"
const MessagesFieldDeleted = "deleted"

const LogTableName = "transaction_log"
const LogFieldAccountID = "account_id"
const LogFieldSeq = "seq"
const LogFieldObjectType = "object_type"
const LogFieldObjectID = "object_id"
const LogFieldOp = "op"
const LogFieldTimestamp = "timestamp"

const VersionTableName = "nylas_version"
const VersionFieldID = "id"
const VersionFieldVersion = "version"
