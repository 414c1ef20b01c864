// Package document is the single source of truth of an image-translation
// project: an ordered list of pages, each owning its source image reference,
// its inpainting mask and an ordered list of text regions.
//
// # Ownership and concurrency
//
// A [Project] owns its pages; a [Page] owns its regions and mask. Every
// mutation goes through a Page or Project method, which bumps the project's
// monotonic version so that readers holding derived data (search results,
// exported snapshots) can detect staleness with a single comparison.
//
// Pages are guarded individually: readers take consistent snapshots through
// [Page.Regions] while a pipeline worker writes another page. The per-page
// busy flag ([Page.TryAcquire]) marks a page as owned by a running pipeline;
// editor code must check it before mutating.
//
// # Regions
//
// A [Region] is the atomic editable unit. Soft deletion keeps the region's
// last committed [RegionData] untouched, so recovering a deleted region is a
// pure state transition.
package document
