package handlers

// messages holds user-facing text per locale, keyed by response code.
var messages = map[string]map[string]string{
	"en": {
		"uploaded":            "Image uploaded successfully. Use /api/process/{jobId} to start staging.",
		"processing_started":  "Image processing started. Check status at /api/job/{jobId}.",
		"expired":             "This job is too old. Please upload your image again.",
		"not_found":           "Job not found.",
		"invalid_input":       "The request could not be processed.",
		"image_required":      "No image file provided.",
		"unsupported_media":   "Only image uploads are accepted.",
		"payload_too_large":   "The image exceeds the upload limit.",
		"invalid_state":       "The job is not in a state that allows this operation.",
		"busy":                "The service is busy. Please retry shortly.",
		"storage_unavailable": "Image storage is temporarily unavailable.",
		"internal":            "Something went wrong. Please try again.",
		"webhook_invalid":     "Webhook payload could not be parsed.",
	},
	"id": {
		"uploaded":            "Gambar berhasil diunggah. Gunakan /api/process/{jobId} untuk memulai staging.",
		"processing_started":  "Pemrosesan gambar dimulai. Cek status di /api/job/{jobId}.",
		"expired":             "Job ini sudah terlalu lama. Silakan unggah ulang gambar Anda.",
		"not_found":           "Job tidak ditemukan.",
		"invalid_input":       "Permintaan tidak dapat diproses.",
		"image_required":      "Berkas gambar tidak ditemukan.",
		"unsupported_media":   "Hanya unggahan gambar yang diterima.",
		"payload_too_large":   "Ukuran gambar melebihi batas unggah.",
		"invalid_state":       "Status job tidak mengizinkan operasi ini.",
		"busy":                "Layanan sedang sibuk. Silakan coba lagi sebentar.",
		"storage_unavailable": "Penyimpanan gambar sedang tidak tersedia.",
		"internal":            "Terjadi kesalahan. Silakan coba lagi.",
		"webhook_invalid":     "Payload webhook tidak dapat dibaca.",
	},
}

func message(locale, code string) string {
	if catalog, ok := messages[locale]; ok {
		if msg, ok := catalog[code]; ok {
			return msg
		}
	}
	if msg, ok := messages["en"][code]; ok {
		return msg
	}
	return code
}
