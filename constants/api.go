package constants

const (
	ENV = "API_ENV"

	ParamUID      = "uid"
	ParamViewport = "name"
	ParamCorner   = "corner"
	ParamAuth     = "Authorization"

	ServerOK          = 0
	ServerError       = 1
	ServerInvalidData = 2
	ServerNotFound    = 3

	// AttrInstanceUIDs is the host volume attribute listing the SOP Instance UIDs, space separated.
	AttrInstanceUIDs = "DICOM.instanceUIDs"

	Unknown = "Unknown"

	ModalityMR = "MR"

	FontTimes = "Times"
	FontArial = "Arial"

	FontSizeMin     = 10
	FontSizeMax     = 20
	FontSizeDefault = 14

	// Slice widgets narrower than this do not get the scanner block.
	MinWidthForScannerBlock = 600
	// Slice views narrower than this do not get the scaling bar.
	MinWidthForScalingRuler = 300

	NotificationContentChanged = "CONTENT_CHANGED"
	NotificationLayoutChanged  = "LAYOUT_CHANGED"

	MetadataSourceMemory   = "memory"
	MetadataSourceDicomDir = "dicom_dir"
	MetadataSourceMinIO    = "minio"
	MetadataSourceOrthanc  = "orthanc"
)
