package orchestrator

import "strings"

// Storage key derivation. These functions are the single source of truth for
// the key namespace shared with the transcoding worker: the worker re-derives
// the same keys from (tenant, media) instead of trusting strings in the job
// payload, so output must be byte-identical for identical input.
//
// Every key starts with the tenant id followed by "/", which is what
// ValidateTenantPrefix checks when callbacks claim output keys.

// ArchivalOriginalKey returns the key of the uploaded original. ext may be
// given with or without a leading dot; an empty ext produces a bare key.
func ArchivalOriginalKey(tenant TenantID, media MediaID, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return string(tenant) + "/originals/" + string(media) + ext
}

// ArchivalMezzanineKey returns the key of the high-quality archival encode.
func ArchivalMezzanineKey(tenant TenantID, media MediaID) string {
	return string(tenant) + "/mezzanine/" + string(media) + "/mezzanine.mp4"
}

// DeliveryOutputPrefix returns the prefix under which the worker writes all
// HLS renditions for a record. Always ends with "/".
func DeliveryOutputPrefix(tenant TenantID, media MediaID) string {
	return string(tenant) + "/hls/" + string(media) + "/"
}

// DeliveryManifestKey returns the key of the master playlist. Audio and
// video share the same delivery layout; the media type is part of the
// derivation contract with the worker and kept in the signature.
func DeliveryManifestKey(tenant TenantID, media MediaID, mediaType MediaType) string {
	return DeliveryOutputPrefix(tenant, media) + "master.m3u8"
}

// DeliveryPreviewKey returns the key of the preview clip playlist (video only).
func DeliveryPreviewKey(tenant TenantID, media MediaID) string {
	return DeliveryOutputPrefix(tenant, media) + "preview/preview.m3u8"
}

// AssetThumbnailKey returns the key of the auto-extracted thumbnail (video only).
func AssetThumbnailKey(tenant TenantID, media MediaID) string {
	return string(tenant) + "/thumbnails/" + string(media) + "/auto-generated.jpg"
}

// AssetWaveformKey returns the key of the waveform JSON data (audio only).
func AssetWaveformKey(tenant TenantID, media MediaID) string {
	return string(tenant) + "/waveforms/" + string(media) + "/waveform.json"
}

// AssetWaveformImageKey returns the key of the rendered waveform PNG (audio only).
func AssetWaveformImageKey(tenant TenantID, media MediaID) string {
	return string(tenant) + "/waveforms/" + string(media) + "/waveform.png"
}

// ValidateTenantPrefix reports whether key lives inside the tenant's
// namespace. Rejects empty inputs and keys that merely share a string prefix
// with the tenant id (e.g. tenant "t1" does not own "t10/...").
func ValidateTenantPrefix(key string, tenant TenantID) bool {
	if key == "" || tenant == "" {
		return false
	}
	return strings.HasPrefix(key, string(tenant)+"/")
}
