package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type galleryBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handlers) handleListGalleries(w http.ResponseWriter, r *http.Request) {
	raw, err := h.Remote.ListGalleries(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, raw)
}

func (h *Handlers) handleCreateGallery(w http.ResponseWriter, r *http.Request) {
	var body galleryBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, r, fmt.Errorf("decode body: %w", err))
		return
	}
	raw, err := h.Remote.CreateGallery(r.Context(), body.Name, body.Description)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, raw)
}

func (h *Handlers) handleUpdateGallery(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var body galleryBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, r, fmt.Errorf("decode body: %w", err))
		return
	}
	raw, err := h.Remote.UpdateGallery(r.Context(), id, body.Name, body.Description)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, raw)
}

func (h *Handlers) handleDeleteGallery(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Remote.DeleteGallery(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, map[string]int{"deleted": id})
}

func (h *Handlers) handleAddItemToGallery(w http.ResponseWriter, r *http.Request) {
	galleryID, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	itemID, err := pathID(r, "itemId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Remote.AddItemToGallery(r.Context(), galleryID, itemID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, map[string]int{"galleryId": galleryID, "itemId": itemID})
}

func (h *Handlers) handleRemoveItemFromGallery(w http.ResponseWriter, r *http.Request) {
	galleryID, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	itemID, err := pathID(r, "itemId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Remote.RemoveItemFromGallery(r.Context(), galleryID, itemID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, map[string]int{"galleryId": galleryID, "itemId": itemID})
}

func (h *Handlers) handleListDevices(w http.ResponseWriter, r *http.Request) {
	raw, err := h.Remote.ListDevices(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, raw)
}

func (h *Handlers) handleAssignGallery(w http.ResponseWriter, r *http.Request) {
	deviceID, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	galleryID, err := pathID(r, "galleryId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Remote.AssignGalleryToDevice(r.Context(), deviceID, galleryID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, map[string]int{"deviceId": deviceID, "galleryId": galleryID})
}
